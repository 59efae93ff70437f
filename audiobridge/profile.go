package audiobridge

import "strings"

// Command is a single privileged routing step.
type Command struct {
	Line string
	// Fatal marks steps whose failure aborts the sequence. Some `service
	// call audio` opcodes vary across Android versions and devices; those
	// steps are merely logged when they fail.
	Fatal bool
}

// RouteProfile holds the ordered command sequences that switch the device
// audio path into and out of bridged voice-call mode. The control names and
// service opcodes are chipset specific.
type RouteProfile struct {
	Name    string
	Enable  []Command
	Disable []Command
}

// SM6150Profile returns the routing profile for Qualcomm SM6150-class
// devices (Snapdragon 675/730 family).
func SM6150Profile() RouteProfile {
	return RouteProfile{
		Name: "sm6150",
		Enable: []Command{
			{Line: `tinymix 'Voice Rx Device Mute' 0 0 0`, Fatal: true},
			{Line: `tinymix 'Voice Tx Device Mute' 0 0 0`, Fatal: true},
			{Line: `tinymix 'Voice Tx Mute' 0 0 0`, Fatal: true},
			{Line: `tinymix 'Voice Rx Gain' 20 20 20`, Fatal: true},
			{Line: `tinymix 'HD Voice Enable' 1 1`, Fatal: true},
			// Opcode 8 (setSpeakerphoneOn) and 28 (setMode) differ between
			// vendor builds; treat failures as non-fatal.
			{Line: `service call audio 8 i32 1`},
			{Line: `service call audio 28 i32 2`},
		},
		Disable: []Command{
			{Line: `service call audio 28 i32 0`, Fatal: true},
			{Line: `service call audio 8 i32 0`, Fatal: true},
			// TODO: -1 is not a documented reset value for every tinymix
			// control; find the per-control defaults on SM6150.
			{Line: `tinymix 'Voice Rx Device Mute' -1 -1 -1`, Fatal: true},
			{Line: `tinymix 'Voice Tx Device Mute' -1 -1 -1`, Fatal: true},
		},
	}
}

// DetectPlatform reads the board platform property through the runner.
// Returns an empty string if the property cannot be read.
func DetectPlatform(r Runner) string {
	out, err := r.Output("getprop ro.board.platform")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(out)
}

// ProfileFor selects a routing profile for the given platform string.
// Unknown platforms fall back to the SM6150 profile.
func ProfileFor(platform string) RouteProfile {
	switch {
	case strings.HasPrefix(platform, "sm6150"):
		return SM6150Profile()
	default:
		return SM6150Profile()
	}
}
