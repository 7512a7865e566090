package serial

import (
	"fmt"
	"sort"

	bugserial "go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// PortInfo describes a serial device visible to the OS.
type PortInfo struct {
	Name         string `json:"name" example:"/dev/ttyUSB0" doc:"OS device name"`
	IsUSB        bool   `json:"is_usb" doc:"Whether the port is a USB adapter"`
	VID          string `json:"vid,omitempty" example:"2341" doc:"USB vendor ID"`
	PID          string `json:"pid,omitempty" example:"0043" doc:"USB product ID"`
	SerialNumber string `json:"serial_number,omitempty" doc:"USB serial number"`
	Product      string `json:"product,omitempty" example:"Arduino Uno" doc:"USB product name"`
}

// listDetailed and listNames are variables so tests can stub enumeration.
var (
	listDetailed = enumerator.GetDetailedPortsList
	listNames    = bugserial.GetPortsList
)

// ListPorts enumerates serial devices, sorted by name. USB details are
// filled in when the platform enumerator supports them.
func ListPorts() ([]PortInfo, error) {
	detailed, err := listDetailed()
	if err == nil && len(detailed) > 0 {
		out := make([]PortInfo, 0, len(detailed))
		for _, p := range detailed {
			out = append(out, PortInfo{
				Name:         p.Name,
				IsUSB:        p.IsUSB,
				VID:          p.VID,
				PID:          p.PID,
				SerialNumber: p.SerialNumber,
				Product:      p.Product,
			})
		}
		sortPorts(out)
		return out, nil
	}

	names, nerr := listNames()
	if nerr != nil {
		if err != nil {
			return nil, fmt.Errorf("enumerate ports: %w", err)
		}
		return nil, fmt.Errorf("enumerate ports: %w", nerr)
	}
	out := make([]PortInfo, 0, len(names))
	for _, n := range names {
		out = append(out, PortInfo{Name: n})
	}
	sortPorts(out)
	return out, nil
}

// PortNames returns just the device names from infos.
func PortNames(infos []PortInfo) []string {
	names := make([]string, len(infos))
	for i, p := range infos {
		names[i] = p.Name
	}
	return names
}

func sortPorts(ports []PortInfo) {
	sort.Slice(ports, func(i, j int) bool { return ports[i].Name < ports[j].Name })
}
