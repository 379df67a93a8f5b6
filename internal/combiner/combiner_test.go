package combiner

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompile_Product(t *testing.T) {
	f, err := Compile("x0 * x1", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, f.Arity())

	n, err := f.Eval([]int64{4, 3})
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)
}

func TestCompile_SingleInput(t *testing.T) {
	f, err := Compile("x0 + 1", 1)
	require.NoError(t, err)

	n, err := f.Eval([]int64{7})
	require.NoError(t, err)
	assert.Equal(t, int64(8), n)
}

func TestCompile_ZeroDimensions(t *testing.T) {
	f, err := Compile("x0 * x1", 2)
	require.NoError(t, err)

	n, err := f.Eval([]int64{0, 5})
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	n, err = f.Eval([]int64{4, 0})
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCompile_UndeclaredInput(t *testing.T) {
	// x1 does not exist at arity 1: the arity mismatch surfaces at
	// registration, not at call time.
	_, err := Compile("x0 * x1", 1)
	assert.Error(t, err)
}

func TestCompile_NotANumber(t *testing.T) {
	_, err := Compile(`"not a count"`, 1)
	assert.Error(t, err)
}

func TestCompile_Empty(t *testing.T) {
	_, err := Compile("   ", 2)
	assert.Error(t, err)

	_, err = Compile("x0", 0)
	assert.Error(t, err)
}

func TestEval_WrongInputCount(t *testing.T) {
	f, err := Compile("x0 * x1", 2)
	require.NoError(t, err)

	_, err = f.Eval([]int64{4})
	assert.Error(t, err)
}

func TestEval_NegativeResult(t *testing.T) {
	f, err := Compile("x0 - x1", 2)
	require.NoError(t, err)

	_, err = f.Eval([]int64{3, 5})
	assert.Error(t, err)
}

func TestEval_NonIntegerResult(t *testing.T) {
	f, err := Compile("x0 / x1", 2)
	require.NoError(t, err)

	// 3 / 2 is not an integer in CUE arithmetic.
	_, err = f.Eval([]int64{3, 2})
	assert.Error(t, err)
}

func TestEval_Deterministic(t *testing.T) {
	f, err := Compile("(x0 + 2) * x1", 2)
	require.NoError(t, err)

	first, err := f.Eval([]int64{6, 7})
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		n, err := f.Eval([]int64{6, 7})
		require.NoError(t, err)
		assert.Equal(t, first, n)
	}
}

func TestEval_Concurrent(t *testing.T) {
	f, err := Compile("x0 * x1", 2)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				n, err := f.Eval([]int64{4, 3})
				if err != nil || n != 12 {
					t.Errorf("Eval = %d, %v", n, err)
					return
				}
			}
		}()
	}
	wg.Wait()
}
