package helper

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	km := NewKeyedMutex()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("person-1")
			defer unlock()
			v := counter
			v++
			counter = v
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Equal(t, 0, km.Len())
}

func TestKeyedMutex_IndependentKeys(t *testing.T) {
	km := NewKeyedMutex()

	unlockA := km.Lock("a")
	unlockB := km.Lock("b") // must not block on "a"
	assert.Equal(t, 2, km.Len())

	unlockB()
	unlockA()
	assert.Equal(t, 0, km.Len())
}

func TestGenerateCaseID(t *testing.T) {
	for i := 0; i < 100; i++ {
		id := GenerateCaseID("ID", 1000, 9999)
		assert.Regexp(t, `^ID-\d{4}$`, id)
	}
}
