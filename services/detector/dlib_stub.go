//go:build !facerec

package detector

import "errors"

func newDlib(string) (Detector, error) {
	return nil, errors.New("built without the facerec tag; rebuild with -tags facerec and dlib installed")
}
