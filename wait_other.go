//go:build !linux && !windows

package asyncserial

func platformWait(dev Device) (waitPrimitive, error) {
	return nil, nil
}
