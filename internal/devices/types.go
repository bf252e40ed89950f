package devices

import "time"

// PrinterConfig describes how the agent reaches its printer.
type PrinterConfig struct {
	Transport     string   `json:"transport"`
	SerialPorts   []string `json:"serial_ports,omitempty"`
	BaudRate      int      `json:"baud_rate,omitempty"`
	TCPHosts      []string `json:"tcp_hosts,omitempty"`
	TCPPort       int      `json:"tcp_port,omitempty"`
	DialTimeoutS  int      `json:"dial_timeout_s,omitempty"`
	WriteTimeoutS int      `json:"write_timeout_s,omitempty"`
	ScanTimeoutS  int      `json:"scan_timeout_s,omitempty"`
	CodePage      string   `json:"code_page,omitempty"`
	BarcodeHeight int      `json:"barcode_height,omitempty"`
	BarcodeWidth  int      `json:"barcode_width,omitempty"`
}

func (c PrinterConfig) DialTimeout() time.Duration {
	return seconds(c.DialTimeoutS, 5)
}

func (c PrinterConfig) WriteTimeout() time.Duration {
	return seconds(c.WriteTimeoutS, 5)
}

func (c PrinterConfig) ScanTimeout() time.Duration {
	return seconds(c.ScanTimeoutS, 10)
}

func (c PrinterConfig) Baud() int {
	if c.BaudRate <= 0 {
		return 9600
	}
	return c.BaudRate
}

// RawPort is the port used for tcp_hosts entries that carry none.
func (c PrinterConfig) RawPort() int {
	if c.TCPPort <= 0 || c.TCPPort > 65535 {
		return 9100
	}
	return c.TCPPort
}

func seconds(v, def int) time.Duration {
	if v <= 0 {
		v = def
	}
	return time.Duration(v) * time.Second
}
