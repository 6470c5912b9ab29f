package main

import "fmt"

// PanelAction names what a physical button does. The values double as the
// IPC wire names for the "button" event.
type PanelAction string

const (
	ActionHomeX PanelAction = "home_x"
	ActionHomeY PanelAction = "home_y"
	ActionHomeZ PanelAction = "home_z"

	ActionJogXPlus  PanelAction = "jog_x_plus"
	ActionJogXMinus PanelAction = "jog_x_minus"
	ActionJogYPlus  PanelAction = "jog_y_plus"
	ActionJogYMinus PanelAction = "jog_y_minus"
	ActionJogZPlus  PanelAction = "jog_z_plus"
	ActionJogZMinus PanelAction = "jog_z_minus"

	ActionStop PanelAction = "stop"
)

// allActions is the set of actions a button may be bound to.
var allActions = []PanelAction{
	ActionHomeX, ActionHomeY, ActionHomeZ,
	ActionJogXPlus, ActionJogXMinus,
	ActionJogYPlus, ActionJogYMinus,
	ActionJogZPlus, ActionJogZMinus,
	ActionStop,
}

// ParsePanelAction validates an action name.
func ParsePanelAction(s string) (PanelAction, error) {
	for _, a := range allActions {
		if string(a) == s {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown panel action: %q", s)
}

// jogSpec describes the move a jog action performs. sign is +1 or -1 and
// multiplies the configured distance for the axis.
type jogSpec struct {
	axis string
	sign float64
}

var jogActions = map[PanelAction]jogSpec{
	ActionJogXPlus:  {"X", 1},
	ActionJogXMinus: {"X", -1},
	ActionJogYPlus:  {"Y", 1},
	ActionJogYMinus: {"Y", -1},
	ActionJogZPlus:  {"Z", 1},
	ActionJogZMinus: {"Z", -1},
}

var homeActions = map[PanelAction]string{
	ActionHomeX: "X",
	ActionHomeY: "Y",
	ActionHomeZ: "Z",
}
