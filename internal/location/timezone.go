package location

import (
	"fmt"
	"sync"

	"github.com/ringsaturn/tzf"
)

// tzFinder wraps a tzf finder.
type tzFinder struct {
	finder tzf.F
}

var (
	tzInstance *tzFinder
	tzErr      error
	tzOnce     sync.Once
)

// NewTimezoneFinder returns the shared finder. tzf keeps its polygons in
// memory, so it is built once per process.
func NewTimezoneFinder() (TimezoneFinder, error) {
	tzOnce.Do(func() {
		finder, err := tzf.NewDefaultFinder()
		if err != nil {
			tzErr = fmt.Errorf("failed to initialize timezone finder: %w", err)
			return
		}
		tzInstance = &tzFinder{finder: finder}
	})
	if tzErr != nil {
		return nil, tzErr
	}
	return tzInstance, nil
}

func (f *tzFinder) GetTimezone(latitude, longitude float64) (string, error) {
	name := f.finder.GetTimezoneName(longitude, latitude)
	if name == "" {
		return "", fmt.Errorf("could not determine timezone for coordinates lat=%f, lon=%f", latitude, longitude)
	}
	return name, nil
}
