package config

import "os"

// OSInterface is the slice of the os package config parsing touches,
// swappable in tests.
type OSInterface interface {
	Getenv(key string) string
	Stat(name string) (os.FileInfo, error)
	ReadFile(name string) ([]byte, error)
}

var defaultOS = OSInterface(realOS{})

type realOS struct{}

func (realOS) Getenv(key string) string              { return os.Getenv(key) }
func (realOS) Stat(name string) (os.FileInfo, error) { return os.Stat(name) }
func (realOS) ReadFile(name string) ([]byte, error)  { return os.ReadFile(name) }
