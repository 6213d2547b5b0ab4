package actions

import "runtime"

// appBinaries maps canonical app names to the binary per platform.
var appBinaries = map[string]map[string]string{
	"chrome":     {"linux": "google-chrome", "darwin": "Google Chrome", "windows": "chrome"},
	"firefox":    {"linux": "firefox", "darwin": "Firefox", "windows": "firefox"},
	"vscode":     {"linux": "code", "darwin": "Visual Studio Code", "windows": "code"},
	"notepad":    {"linux": "gedit", "darwin": "TextEdit", "windows": "notepad"},
	"terminal":   {"linux": "x-terminal-emulator", "darwin": "Terminal", "windows": "cmd"},
	"spotify":    {"linux": "spotify", "darwin": "Spotify", "windows": "spotify"},
	"calculator": {"linux": "gnome-calculator", "darwin": "Calculator", "windows": "calc"},
	"files":      {"linux": "nautilus", "darwin": "Finder", "windows": "explorer"},
}

// appCommand returns the argv to launch a canonical app on this platform.
func appCommand(app string) ([]string, bool) {
	bins, ok := appBinaries[app]
	if !ok {
		return nil, false
	}
	bin, ok := bins[runtime.GOOS]
	if !ok {
		return nil, false
	}
	if runtime.GOOS == "darwin" {
		return []string{"open", "-a", bin}, true
	}
	return []string{bin}, true
}

func volumeCmd(direction string) []string {
	switch runtime.GOOS {
	case "linux":
		switch direction {
		case "up":
			return []string{"pactl", "set-sink-volume", "@DEFAULT_SINK@", "+10%"}
		case "down":
			return []string{"pactl", "set-sink-volume", "@DEFAULT_SINK@", "-10%"}
		case "mute":
			return []string{"pactl", "set-sink-mute", "@DEFAULT_SINK@", "toggle"}
		}
	case "darwin":
		switch direction {
		case "up":
			return []string{"osascript", "-e", "set volume output volume ((output volume of (get volume settings)) + 10)"}
		case "down":
			return []string{"osascript", "-e", "set volume output volume ((output volume of (get volume settings)) - 10)"}
		case "mute":
			return []string{"osascript", "-e", "set volume output muted true"}
		}
	}
	return nil
}

func brightnessCmd(direction string) []string {
	if runtime.GOOS != "linux" {
		return nil
	}
	if direction == "up" {
		return []string{"brightnessctl", "set", "+10%"}
	}
	return []string{"brightnessctl", "set", "10%-"}
}

func lockCmd() []string {
	switch runtime.GOOS {
	case "linux":
		return []string{"loginctl", "lock-session"}
	case "darwin":
		return []string{"pmset", "displaysleepnow"}
	case "windows":
		return []string{"rundll32.exe", "user32.dll,LockWorkStation"}
	}
	return nil
}

func sleepCmd() []string {
	switch runtime.GOOS {
	case "linux":
		return []string{"systemctl", "suspend"}
	case "darwin":
		return []string{"pmset", "sleepnow"}
	case "windows":
		return []string{"rundll32.exe", "powrprof.dll,SetSuspendState", "0,1,0"}
	}
	return nil
}

func shutdownCmd() []string {
	switch runtime.GOOS {
	case "linux":
		return []string{"systemctl", "poweroff"}
	case "darwin":
		return []string{"osascript", "-e", `tell app "System Events" to shut down`}
	case "windows":
		return []string{"shutdown", "/s", "/t", "0"}
	}
	return nil
}
