package surface

import "errors"

// ErrFake is returned by the fake surface when scripted to fail.
var ErrFake = errors.New("fake surface failure")

// ErrCapabilityMissing is returned when a required capability is unbound.
var ErrCapabilityMissing = errors.New("surface capability not bound")
