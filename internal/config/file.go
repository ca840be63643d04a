package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// FileVersion is the config file format version written by Save.
const FileVersion = "1.0"

// File is the JSON configuration file.
type File struct {
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Version     string    `json:"version"`
	Created     time.Time `json:"created"`

	Sweep       SweepJSON       `json:"sweep"`
	Measurement MeasurementJSON `json:"measurement"`
	Acquisition AcquisitionJSON `json:"acquisition"`
	Calibration CalibrationJSON `json:"calibration"`
	Hardware    HardwareJSON    `json:"hardware"`
}

// SweepJSON defines the frequency grid.
type SweepJSON struct {
	StartKHz float64 `json:"start_khz"`
	EndKHz   float64 `json:"end_khz"`
	Points   int     `json:"points"`
}

// MeasurementJSON holds per-point measurement settings.
type MeasurementJSON struct {
	Averages     int     `json:"averages"`
	IFKHz        float64 `json:"if_khz"`
	Extractor    string  `json:"extractor,omitempty"`
	Window       string  `json:"window,omitempty"`
	SettleMs     float64 `json:"settle_ms"`
	FreqSettleMs float64 `json:"freq_settle_ms"`
	BridgeGain   float64 `json:"bridge_gain"`
}

// AcquisitionJSON holds the burst geometry.
type AcquisitionJSON struct {
	PairRateKHz float64 `json:"pair_rate_khz"`
	Samples     int     `json:"samples"`
	Discard     int     `json:"discard"`
	Retries     int     `json:"retries"`
	Bits        int     `json:"bits"`
}

// CalibrationJSON holds calibration settings.
type CalibrationJSON struct {
	Averages int     `json:"averages"`
	LoadOhms float64 `json:"load_ohms"`
	Z0Ohms   float64 `json:"z0_ohms"`
}

// HardwareJSON addresses the hardware.
type HardwareJSON struct {
	Backend    string `json:"backend"`
	SerialPort string `json:"serial_port,omitempty"`
	Baud       int    `json:"baud,omitempty"`
	USBVendor  uint16 `json:"usb_vendor,omitempty"`
	USBProduct uint16 `json:"usb_product,omitempty"`
}

// Load reads and checks a config file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &f, nil
}

// Save writes f to path, stamping the creation time.
func Save(f *File, path string) error {
	f.Created = time.Now()
	if f.Version == "" {
		f.Version = FileVersion
	}

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks the file version and the resulting runtime configuration.
func (f *File) Validate() error {
	if f.Version != FileVersion {
		return fmt.Errorf("%w: %q", ErrConfigVersion, f.Version)
	}

	return f.ToConfig().Validate()
}

// ToConfig converts the file to a runtime Config. Zero fields take their
// defaults.
func (f *File) ToConfig() *Config {
	c := Default()

	setF(&c.Sweep.Start, f.Sweep.StartKHz)
	setF(&c.Sweep.End, f.Sweep.EndKHz)
	setI(&c.Sweep.Points, f.Sweep.Points)

	setI(&c.Averages, f.Measurement.Averages)
	setF(&c.IF, f.Measurement.IFKHz)
	setS(&c.Extractor, f.Measurement.Extractor)
	setS(&c.Window, f.Measurement.Window)
	setD(&c.Settle, f.Measurement.SettleMs)
	setD(&c.FreqSettle, f.Measurement.FreqSettleMs)
	setF(&c.BridgeGain, f.Measurement.BridgeGain)

	setF(&c.PairRate, f.Acquisition.PairRateKHz)
	setI(&c.Acquire.Samples, f.Acquisition.Samples)
	setI(&c.Acquire.Discard, f.Acquisition.Discard)
	setI(&c.Acquire.Retries, f.Acquisition.Retries)
	setI(&c.Acquire.Bits, f.Acquisition.Bits)

	setI(&c.CalAverages, f.Calibration.Averages)
	setF(&c.LoadOhms, f.Calibration.LoadOhms)
	setF(&c.Z0, f.Calibration.Z0Ohms)

	setS(&c.Hardware.Backend, f.Hardware.Backend)
	c.Hardware.SerialPort = f.Hardware.SerialPort
	c.Hardware.Baud = f.Hardware.Baud
	c.Hardware.USBVendor = f.Hardware.USBVendor
	c.Hardware.USBProduct = f.Hardware.USBProduct

	return c
}

// FromConfig returns the file form of c.
func FromConfig(c *Config, name string) *File {
	return &File{
		Name:    name,
		Version: FileVersion,
		Sweep: SweepJSON{
			StartKHz: c.Sweep.Start,
			EndKHz:   c.Sweep.End,
			Points:   c.Sweep.Points,
		},
		Measurement: MeasurementJSON{
			Averages:     c.Averages,
			IFKHz:        c.IF,
			Extractor:    c.Extractor,
			Window:       c.Window,
			SettleMs:     ms(c.Settle),
			FreqSettleMs: ms(c.FreqSettle),
			BridgeGain:   c.BridgeGain,
		},
		Acquisition: AcquisitionJSON{
			PairRateKHz: c.PairRate,
			Samples:     c.Acquire.Samples,
			Discard:     c.Acquire.Discard,
			Retries:     c.Acquire.Retries,
			Bits:        c.Acquire.Bits,
		},
		Calibration: CalibrationJSON{
			Averages: c.CalAverages,
			LoadOhms: c.LoadOhms,
			Z0Ohms:   c.Z0,
		},
		Hardware: HardwareJSON{
			Backend:    c.Hardware.Backend,
			SerialPort: c.Hardware.SerialPort,
			Baud:       c.Hardware.Baud,
			USBVendor:  c.Hardware.USBVendor,
			USBProduct: c.Hardware.USBProduct,
		},
	}
}

func setF(dst *float64, v float64) {
	if v != 0 {
		*dst = v
	}
}

func setI(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setS(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setD(dst *time.Duration, msec float64) {
	if msec != 0 {
		*dst = time.Duration(msec * float64(time.Millisecond))
	}
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
