// Package config loads the wlanctl HCL configuration.
//
// Every field has a default so an empty file (or no file) yields a usable
// configuration. Role blocks merge over the built-in station, p2p and ap
// roles:
//
//	platform = "vendor"
//
//	role "station" {
//	  interface = "wlan1"
//	}
//
//	driver {
//	  module = "wlan"
//	}
//
// Expressions may reference env.NAME, state_dir and run_dir.
package config
