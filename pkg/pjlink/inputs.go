package pjlink

import (
	"fmt"
	"sort"
)

// Input code grammar: two digits. The first selects the category, the
// second the instance (1-9).
const (
	inputRGB     = '1'
	inputVideo   = '2'
	inputDigital = '3'
	inputStorage = '4'
	inputNetwork = '5'
)

// inputNames maps friendly names to PJLink input codes.
var inputNames = map[string]string{
	"rgb1": "11", "rgb2": "12", "rgb3": "13",
	"video1": "21", "video2": "22", "video3": "23",
	"dvi1": "31", "hdmi1": "31", "hdmi2": "32", "hdmi3": "33",
	"storage1": "41", "storage2": "42",
	"network1": "51", "network2": "52",
}

// inputCodeNames maps codes back to a canonical friendly name.
// Built from inputNames with the first (alphabetical) name winning, so
// "31" resolves to "hdmi1" rather than "dvi1" is NOT guaranteed by map
// order; the table is therefore explicit.
var inputCodeNames = map[string]string{
	"11": "rgb1", "12": "rgb2", "13": "rgb3",
	"21": "video1", "22": "video2", "23": "video3",
	"31": "hdmi1", "32": "hdmi2", "33": "hdmi3",
	"41": "storage1", "42": "storage2",
	"51": "network1", "52": "network2",
}

// ValidInputCode reports whether a two-character input code satisfies
// the PJLink grammar: category 1-5, instance 1-9.
func ValidInputCode(code string) bool {
	if len(code) != 2 {
		return false
	}
	if code[0] < inputRGB || code[0] > inputNetwork {
		return false
	}
	return code[1] >= '1' && code[1] <= '9'
}

// ResolveInput turns a friendly name or literal code into a validated
// input code.
func ResolveInput(nameOrCode string) (string, error) {
	if code, ok := inputNames[nameOrCode]; ok {
		return code, nil
	}
	if ValidInputCode(nameOrCode) {
		return nameOrCode, nil
	}
	return "", fmt.Errorf("unknown input %q", nameOrCode)
}

// InputName returns the friendly name for a code, or the code itself
// when no name is known.
func InputName(code string) string {
	if name, ok := inputCodeNames[code]; ok {
		return name
	}
	return code
}

// KnownInputNames returns the sorted list of friendly input names.
func KnownInputNames() []string {
	names := make([]string, 0, len(inputNames))
	for name := range inputNames {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
