package remediation

import (
	"fmt"
	"regexp"
)

// serviceNamePattern restricts substituted names to systemd-unit / container
// name characters. Anything else is rejected before it can reach a shell.
var serviceNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.@-]*$`)

// ResolveCommand maps an action type to its literal command template. The
// mapping is closed: an unlisted type is rejected at creation, never queued.
func ResolveCommand(actionType ActionType, serviceName string) (string, error) {
	switch actionType {
	case ActionRestartService:
		if err := validateServiceName(serviceName); err != nil {
			return "", err
		}
		return fmt.Sprintf("systemctl restart %s", serviceName), nil
	case ActionStopService:
		if err := validateServiceName(serviceName); err != nil {
			return "", err
		}
		return fmt.Sprintf("systemctl stop %s", serviceName), nil
	case ActionStartService:
		if err := validateServiceName(serviceName); err != nil {
			return "", err
		}
		return fmt.Sprintf("systemctl start %s", serviceName), nil
	case ActionRestartContainer:
		if err := validateServiceName(serviceName); err != nil {
			return "", err
		}
		return fmt.Sprintf("docker restart %s", serviceName), nil
	case ActionReboot:
		return "systemctl reboot", nil
	case ActionClearLogs:
		return "journalctl --vacuum-time=2d", nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownActionType, actionType)
	}
}

func validateServiceName(name string) error {
	if name == "" {
		return ErrServiceRequired
	}
	if !serviceNamePattern.MatchString(name) {
		return fmt.Errorf("invalid service name %q", name)
	}
	return nil
}
