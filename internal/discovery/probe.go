package discovery

import (
	"context"
	"encoding/xml"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// httpClient is a shared client with reasonable timeouts to prevent hanging on unreachable devices.
var httpClient = &http.Client{
	Timeout: 5 * time.Second,
	Transport: &http.Transport{
		DialContext:         (&net.Dialer{Timeout: 3 * time.Second}).DialContext,
		TLSHandshakeTimeout: 3 * time.Second,
		IdleConnTimeout:     30 * time.Second,
	},
}

const castManufacturer = "Google Inc."

// DeviceDescription is the subset of a DIAL device description this
// service cares about.
type DeviceDescription struct {
	FriendlyName string
	Manufacturer string
	ModelName    string
	UDN          string
}

// IsCastDevice reports whether the description belongs to a cast
// receiver rather than some other DIAL-capable TV.
func (d *DeviceDescription) IsCastDevice() bool {
	return d.Manufacturer == castManufacturer
}

// ProbeDescription fetches and parses the device description at the
// announced location.
func ProbeDescription(ctx context.Context, location string) (*DeviceDescription, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, err
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return ParseDeviceDescription(body)
}

func ParseDeviceDescription(xmlPayload []byte) (*DeviceDescription, error) {
	decoder := xml.NewDecoder(strings.NewReader(string(xmlPayload)))
	var desc DeviceDescription
	var udnRaw string

	for {
		tok, err := decoder.Token()
		if err != nil {
			break
		}
		switch se := tok.(type) {
		case xml.StartElement:
			switch se.Name.Local {
			case "friendlyName":
				var value string
				if err := decoder.DecodeElement(&value, &se); err == nil {
					desc.FriendlyName = strings.TrimSpace(value)
				}
			case "manufacturer":
				var value string
				if err := decoder.DecodeElement(&value, &se); err == nil {
					desc.Manufacturer = strings.TrimSpace(value)
				}
			case "modelName":
				var value string
				if err := decoder.DecodeElement(&value, &se); err == nil {
					desc.ModelName = strings.TrimSpace(value)
				}
			case "UDN":
				// Only take the first UDN (root device).
				if udnRaw == "" {
					var value string
					if err := decoder.DecodeElement(&value, &se); err == nil {
						udnRaw = strings.TrimSpace(value)
					}
				}
			}
		}
	}

	if udnRaw != "" {
		desc.UDN = strings.TrimPrefix(udnRaw, "uuid:")
	}
	return &desc, nil
}
