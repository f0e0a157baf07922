package model

import "fmt"

// Address identifies a remote session endpoint: a phone number plus the
// specific device of that number's account. It is the session-store key.
type Address struct {
	Number   string
	DeviceID uint32
}

func NewAddress(number string, deviceID uint32) Address {
	return Address{Number: number, DeviceID: deviceID}
}

func (a Address) String() string {
	return fmt.Sprintf("%s.%d", a.Number, a.DeviceID)
}
