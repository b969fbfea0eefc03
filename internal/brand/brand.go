// Package brand holds the product name and the directory layout of wlanctl.
//
// The identity lives in brand.json, embedded at build time, so packaging
// scripts read the same values. Every directory can be moved with
// WLANCTL_<KIND>_DIR, or all of them at once with WLANCTL_PREFIX.
package brand

import (
	_ "embed"
	"encoding/json"
	"os"
	"path/filepath"
)

//go:embed brand.json
var brandJSON []byte

// Brand is the decoded brand.json.
type Brand struct {
	Name            string `json:"name"`
	LowerName       string `json:"lowerName"`
	Description     string `json:"description"`
	ConfigEnvPrefix string `json:"configEnvPrefix"`
	Dirs            struct {
		Config string `json:"config"`
		State  string `json:"state"`
		Run    string `json:"run"`
	} `json:"dirs"`
	SocketName     string `json:"socketName"`
	BinaryName     string `json:"binaryName"`
	ConfigFileName string `json:"configFileName"`
	PropertyDBName string `json:"propertyDBName"`
}

var b = mustParse(brandJSON)

func mustParse(data []byte) Brand {
	var v Brand
	if err := json.Unmarshal(data, &v); err != nil {
		panic("brand.json: " + err.Error())
	}
	return v
}

var (
	Name             = b.Name
	LowerName        = b.LowerName
	Description      = b.Description
	ConfigEnvPrefix  = b.ConfigEnvPrefix
	DefaultConfigDir = b.Dirs.Config
	DefaultStateDir  = b.Dirs.State
	DefaultRunDir    = b.Dirs.Run
	SocketName       = b.SocketName
	BinaryName       = b.BinaryName
	ConfigFileName   = b.ConfigFileName
	PropertyDBName   = b.PropertyDBName
)

// Set at build time with -ldflags -X.
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Get returns the decoded brand.json.
func Get() Brand { return b }

// UserAgent is "<name>/<version>", with "dev" for an empty version.
func UserAgent(version string) string {
	if version == "" {
		version = "dev"
	}
	return Name + "/" + version
}

// dir picks <PREFIX>_<KIND>_DIR, then <PREFIX>_PREFIX/<sub>, then fallback.
func dir(kind, sub, fallback string) string {
	if d := os.Getenv(ConfigEnvPrefix + "_" + kind + "_DIR"); d != "" {
		return d
	}
	if p := os.Getenv(ConfigEnvPrefix + "_PREFIX"); p != "" {
		return filepath.Join(p, sub)
	}
	return fallback
}

// GetStateDir holds the property store, journal, audit trail and snapshots.
func GetStateDir() string { return dir("STATE", "state", DefaultStateDir) }

func GetConfigDir() string { return dir("CONFIG", "config", DefaultConfigDir) }

// GetRunDir holds the control socket, the lock and the PID file.
func GetRunDir() string { return dir("RUN", "run", DefaultRunDir) }

func GetConfigPath() string { return filepath.Join(GetConfigDir(), ConfigFileName) }

func GetPropertyDBPath() string { return filepath.Join(GetStateDir(), PropertyDBName) }

// GetSocketPath is the control plane socket, e.g. /run/wlanctl/wlanctl-ctl.sock.
func GetSocketPath() string {
	return filepath.Join(GetRunDir(), LowerName+"-"+SocketName)
}

// GetLockPath is the single-instance lock taken by "wlanctl serve".
func GetLockPath() string { return filepath.Join(GetRunDir(), LowerName+".lock") }
