package lw3

import (
	"regexp"
	"strings"

	"github.com/KevinKickass/OpenMatrixCore/internal/matrix"
)

// Pushed property lines start with pr (read-only), pw (read-write) or CHG
// (change notification on an opened node).
const pushPrefix = `^(?:pr|pw|CHG)\s*`

var (
	destinationListPattern = regexp.MustCompile(pushPrefix + `\S+\.Destination(?:ConnectionList|ConnectionStatus)=(.*)$`)
	portTextPattern        = regexp.MustCompile(pushPrefix + `\S*/([IO]\d+)\.Text=(.*)$`)
	presetNamePattern      = regexp.MustCompile(pushPrefix + `\S*/(?:PRESETS/AVC|MEDIA/PRESET)/([^/.]+)\.Name=(.*)$`)
	mx2PortNamePattern     = regexp.MustCompile(pushPrefix + `\S*/MEDIA/NAMES/VIDEO\.([IO]\d+)=\d+;(.*)$`)
)

// DefaultSubscriptions returns the subscription table keeping model in sync
// with pushed events.
func DefaultSubscriptions(model *matrix.Model) []Subscription {
	return []Subscription{
		{
			Name:    "destination-connection-list",
			Pattern: destinationListPattern,
			Handler: func(match []string) (bool, error) {
				list, err := parseDestinationList(match[0], match[1])
				if err != nil {
					return false, err
				}
				model.SetDestinations(list)
				return false, nil
			},
			Signal: matrix.ChangeRouting,
		},
		{
			Name:    "port-text",
			Pattern: portTextPattern,
			Handler: func(match []string) (bool, error) {
				if err := model.SetPort(match[1], match[2]); err != nil {
					return false, &MalformedError{Line: match[0], Reason: err.Error()}
				}
				return true, nil
			},
		},
		{
			Name:    "preset-name",
			Pattern: presetNamePattern,
			Handler: func(match []string) (bool, error) {
				if !model.RenamePreset(match[1], match[2]) {
					return false, errNoChange
				}
				return false, nil
			},
			Signal: matrix.ChangeNaming,
		},
		{
			Name:    "mx2-port-name",
			Pattern: mx2PortNamePattern,
			Handler: func(match []string) (bool, error) {
				if err := model.SetPort(match[1], match[2]); err != nil {
					return false, &MalformedError{Line: match[0], Reason: err.Error()}
				}
				return true, nil
			},
		},
	}
}

// parseDestinationList splits "I1;I2;;I1" into source port ids. Exactly one
// trailing empty element is dropped.
func parseDestinationList(line, value string) ([]string, error) {
	tokens := strings.Split(value, ";")
	if !matrix.IsInputPort(tokens[0]) {
		return nil, &MalformedError{Line: line, Reason: "first token is not an input port"}
	}
	if n := len(tokens); n > 1 && tokens[n-1] == "" {
		tokens = tokens[:n-1]
	}
	return tokens, nil
}
