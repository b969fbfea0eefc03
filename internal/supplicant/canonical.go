package supplicant

import "strings"

// IfnamePrefix marks an interface-tagged event or command.
const IfnamePrefix = "IFNAME="

// Synthesized event strings.
const (
	EventTerminating      = "CTRL-EVENT-TERMINATING"
	EventConnectionClosed = EventTerminating + " - connection closed"
	EventRecvError        = EventTerminating + " - recv error"
	EventSignalZero       = EventTerminating + " - signal 0 received"
	EventIgnore           = "CTRL-EVENT-IGNORE "
)

// IsTerminal reports whether ev ends the event stream: one of the
// synthesized terminal events, or the daemon announcing its own exit.
func IsTerminal(ev string) bool {
	return EventName(ev) == EventTerminating
}

// Canonicalize rewrites a raw event line received on the monitor connection
// into "IFNAME=<iface> <body>" with the level tag removed.
//
// The interface prefix is always synthesized, so a line the daemon already
// tagged with IFNAME= keeps its own prefix after ours.
func Canonicalize(iface, raw string) string {
	raw = strings.TrimRight(raw, "\x00")
	return StripLevel(IfnamePrefix + iface + " " + raw)
}

// StripLevel removes the "<N>" level tag from an event line.
//
//	IFNAME=wlan0 <3>CTRL-EVENT-X  ->  IFNAME=wlan0 CTRL-EVENT-X
//	<3>CTRL-EVENT-X               ->  CTRL-EVENT-X
//	CTRL-EVENT-X                  ->  CTRL-EVENT-X
//
// An IFNAME= line without a space is replaced by EventIgnore.
func StripLevel(line string) string {
	if strings.HasPrefix(line, IfnamePrefix) {
		sp := strings.IndexByte(line, ' ')
		if sp < 0 {
			return EventIgnore
		}
		if sp+1 < len(line) && line[sp+1] == '<' {
			if gt := strings.IndexByte(line[sp+2:], '>'); gt >= 0 {
				return line[:sp+1] + line[sp+2+gt+1:]
			}
		}
		return line
	}
	if strings.HasPrefix(line, "<") {
		if gt := strings.IndexByte(line, '>'); gt >= 0 {
			return line[gt+1:]
		}
	}
	return line
}

// EventName returns the event identifier of a canonical event, e.g.
// "CTRL-EVENT-CONNECTED". Interface prefixes are skipped.
func EventName(ev string) string {
	for strings.HasPrefix(ev, IfnamePrefix) {
		sp := strings.IndexByte(ev, ' ')
		if sp < 0 {
			return "other"
		}
		ev = ev[sp+1:]
	}
	if i := strings.IndexAny(ev, " \t"); i >= 0 {
		ev = ev[:i]
	}
	if ev == "" {
		return "other"
	}
	for _, r := range ev {
		if !(r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_') {
			return "other"
		}
	}
	return ev
}

// stripIfname drops an "IFNAME=<iface> " token from a command. ok is false
// when the command carries IFNAME= but no space.
func stripIfname(cmd string) (string, bool) {
	if !strings.HasPrefix(cmd, IfnamePrefix) {
		return cmd, true
	}
	sp := strings.IndexByte(cmd, ' ')
	if sp < 0 {
		return "", false
	}
	return cmd[sp+1:], true
}
