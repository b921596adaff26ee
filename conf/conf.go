package conf

import (
	"errors"
	"fmt"
	"github.com/1f349/bluebell/dnssec"
	validateDomain "github.com/chmike/domain"
	"github.com/miekg/dns"
	"github.com/spf13/afero"
	"golang.org/x/net/publicsuffix"
	"gopkg.in/yaml.v3"
	"net/netip"
	"strings"
)

type Conf struct {
	Listen   ListenConf `yaml:"listen"`
	Tls      TlsConf    `yaml:"tls"`
	LogLevel string     `yaml:"logLevel"`
	ApiKeys  string     `yaml:"apiKeys"`
	Soa      SoaConf    `yaml:"soa"`
	Dnssec   DnssecConf `yaml:"dnssec"`
	Zones    []ZoneConf `yaml:"zones"`
}

type ListenConf struct {
	Dns string `yaml:"dns"`
	Tls string `yaml:"tls"`
	Api string `yaml:"api"`
}

type TlsConf struct {
	Cert string `yaml:"cert"`
	Key  string `yaml:"key"`
}

type SoaConf struct {
	Ns      []string `yaml:"ns"`
	Mbox    string   `yaml:"mbox"`
	Refresh uint32   `yaml:"refresh"`
	Retry   uint32   `yaml:"retry"`
	Expire  uint32   `yaml:"expire"`
	Ttl     uint32   `yaml:"ttl"`
}

type DnssecConf struct {
	// Algorithms limits which signatures are served, empty allows every
	// known algorithm
	Algorithms []string `yaml:"algorithms"`
}

type ZoneConf struct {
	Name          string       `yaml:"name"`
	File          string       `yaml:"file"`
	AllowUpdate   []string     `yaml:"allowUpdate"`
	AllowTransfer []string     `yaml:"allowTransfer"`
	Records       []RecordConf `yaml:"records"`
}

// RecordConf is an extra record added to a zone after loading, Name may be
// relative to the zone.
type RecordConf struct {
	Name  string `yaml:"name"`
	Type  string `yaml:"type"`
	Value string `yaml:"value"`
	Ttl   uint32 `yaml:"ttl"`
}

var (
	ErrNoZones      = errors.New("no zones configured")
	ErrMissingSoaNs = errors.New("soa.ns is required for zones without a file")
)

// Load reads and validates a YAML config file from fs.
func Load(fs afero.Fs, path string) (Conf, error) {
	raw, err := afero.ReadFile(fs, path)
	if err != nil {
		return Conf{}, err
	}
	var c Conf
	err = yaml.Unmarshal(raw, &c)
	if err != nil {
		return Conf{}, fmt.Errorf("invalid config file: %w", err)
	}
	if c.Listen.Dns == "" {
		c.Listen.Dns = ":53"
	}
	for i := range c.Zones {
		c.Zones[i].Name = dns.CanonicalName(c.Zones[i].Name)
	}
	return c, c.Validate()
}

func (c Conf) Validate() error {
	if len(c.Zones) == 0 {
		return ErrNoZones
	}
	if (c.Listen.Tls == "") != (c.Tls.Cert == "" && c.Tls.Key == "") {
		return errors.New("listen.tls requires tls.cert and tls.key")
	}
	if c.Listen.Api != "" && c.ApiKeys == "" {
		return errors.New("listen.api requires apiKeys")
	}
	if _, err := c.SupportedAlgorithms(); err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(c.Zones))
	for _, z := range c.Zones {
		if err := validateZoneName(z.Name); err != nil {
			return err
		}
		if _, ok := seen[z.Name]; ok {
			return fmt.Errorf("zone %s configured twice", z.Name)
		}
		seen[z.Name] = struct{}{}
		if z.File == "" && len(c.Soa.Ns) == 0 {
			return fmt.Errorf("zone %s: %w", z.Name, ErrMissingSoaNs)
		}
		if _, err := z.UpdatePrefixes(); err != nil {
			return fmt.Errorf("zone %s: allowUpdate: %w", z.Name, err)
		}
		if _, err := z.TransferPrefixes(); err != nil {
			return fmt.Errorf("zone %s: allowTransfer: %w", z.Name, err)
		}
	}
	return nil
}

// validateZoneName rejects malformed names and bare public suffixes, serving
// "co.uk." would make this server authoritative for every domain below it
func validateZoneName(name string) error {
	trimmed := strings.TrimSuffix(name, ".")
	if err := validateDomain.Check(trimmed); err != nil {
		return fmt.Errorf("invalid zone name %q: %w", name, err)
	}
	suffix, icann := publicsuffix.PublicSuffix(trimmed)
	if icann && strings.EqualFold(suffix, trimmed) {
		return fmt.Errorf("zone %s is a public suffix", name)
	}
	return nil
}

func (c Conf) SupportedAlgorithms() (dnssec.SupportedAlgorithms, error) {
	return dnssec.ParseSupportedAlgorithms(c.Dnssec.Algorithms)
}

// UpdatePrefixes parses the networks allowed to send dynamic updates.
func (z ZoneConf) UpdatePrefixes() ([]netip.Prefix, error) {
	return parsePrefixes(z.AllowUpdate)
}

// TransferPrefixes parses the networks allowed to transfer the zone.
func (z ZoneConf) TransferPrefixes() ([]netip.Prefix, error) {
	return parsePrefixes(z.AllowTransfer)
}

// parsePrefixes treats plain addresses as single host prefixes
func parsePrefixes(list []string) ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(list))
	for _, s := range list {
		if !strings.Contains(s, "/") {
			addr, err := netip.ParseAddr(s)
			if err != nil {
				return nil, err
			}
			prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return nil, err
		}
		prefixes = append(prefixes, p.Masked())
	}
	return prefixes, nil
}
