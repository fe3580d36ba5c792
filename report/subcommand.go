package report

// Subcommand identifies a request carried in a SubCommand output report's
// byte 11.
type Subcommand byte

const (
	SubRequestDeviceInfo         Subcommand = 0x02
	SubSetInputReportMode        Subcommand = 0x03
	SubTriggerButtonsElapsedTime Subcommand = 0x04
	SubSetShipmentState          Subcommand = 0x08
	SubSpiFlashRead              Subcommand = 0x10
	SubSetNfcIrMcuConfig         Subcommand = 0x21
	SubSetNfcIrMcuState          Subcommand = 0x22
	SubSetPlayerLights           Subcommand = 0x30
	SubEnable6AxisSensor         Subcommand = 0x40
	SubEnableVibration           Subcommand = 0x48
)

// Known reports whether s names one of the dispatch table's subcommands.
func (s Subcommand) Known() bool {
	switch s {
	case SubRequestDeviceInfo, SubSetInputReportMode, SubTriggerButtonsElapsedTime,
		SubSetShipmentState, SubSpiFlashRead, SubSetNfcIrMcuConfig, SubSetNfcIrMcuState,
		SubSetPlayerLights, SubEnable6AxisSensor, SubEnableVibration:
		return true
	default:
		return false
	}
}
