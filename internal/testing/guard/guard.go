// Package guard flips binaries into test mode when imported by a test.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("SAAS_TEST_MODE") == "" {
			_ = os.Setenv("SAAS_TEST_MODE", "1")
		}
	})
}
