package port

import (
	"github.com/kbdingest/engine/errs"
	"github.com/kbdingest/engine/kbd"
)

// stubDevice is a minimal no-op kbd.Device for config_test.go's error-path
// tests; embed it and override only the method under test.
type stubDevice struct{}

func (stubDevice) EALInit(argv []string) error { return nil }
func (stubDevice) EALCleanup()                 {}
func (stubDevice) MempoolCreate(cfg kbd.MempoolConfig) (kbd.Mempool, error) {
	return 1, nil
}
func (stubDevice) DevIsValidPort(portID uint16) bool { return true }
func (stubDevice) DevConfigure(portID uint16, cfg kbd.DeviceConfig) error {
	return nil
}
func (stubDevice) RxQueueSetup(portID, queueID uint16, ringSize uint16, socketID int, pool kbd.Mempool) error {
	return nil
}
func (stubDevice) TxQueueSetup(portID, queueID uint16, ringSize uint16, socketID int) error {
	return nil
}
func (stubDevice) DevStart(portID uint16) error     { return nil }
func (stubDevice) DevStop(portID uint16) error      { return nil }
func (stubDevice) DevClose(portID uint16) error     { return nil }
func (stubDevice) PromiscEnable(portID uint16) error { return nil }
func (stubDevice) DevSocketID(portID uint16) int    { return -1 }
func (stubDevice) RxBurst(portID, queueID uint16, out []kbd.Mbuf) int {
	return 0
}
func (stubDevice) PktMbufFree(m kbd.Mbuf) {}

func isPortInvalid(err error) bool {
	return errs.Is(err, errs.KindPortInvalid)
}
