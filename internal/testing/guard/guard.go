package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("FIELDGATE_TEST_MODE") == "" {
			_ = os.Setenv("FIELDGATE_TEST_MODE", "1")
		}
	})
}
