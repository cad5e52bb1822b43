package license

import (
	"bufio"
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// ErrLicenseInvalid marks any license rejection: undecryptable blob, wrong
// server binding, or exceeded machine count.
var ErrLicenseInvalid = errors.New("license invalid")

// Details is the decrypted license payload.
type Details struct {
	CompanyName  string
	Location     string
	ServerUniqID string
	TotalLicense int
}

// padKeyMaterial zero-pads or truncates key material to the AES-128 block size.
func padKeyMaterial(b []byte) []byte {
	out := make([]byte, aes.BlockSize)
	copy(out, b)
	return out
}

// Decrypt decodes a base64 AES-128-CBC license blob into its details.
// The plaintext format is "CompanyName/Location/ServerUniqID/TotalLicense".
func Decrypt(blob string, key, iv []byte) (*Details, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(blob))
	if err != nil {
		return nil, fmt.Errorf("failed to decode license blob: %w", err)
	}
	if len(raw) == 0 || len(raw)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("license blob is not a whole number of cipher blocks")
	}

	block, err := aes.NewCipher(padKeyMaterial(key))
	if err != nil {
		return nil, fmt.Errorf("failed to init license cipher: %w", err)
	}

	plain := make([]byte, len(raw))
	cipher.NewCBCDecrypter(block, padKeyMaterial(iv)).CryptBlocks(plain, raw)

	plain, err = pkcs7Unpad(plain)
	if err != nil {
		return nil, err
	}

	parts := strings.Split(string(plain), "/")
	if len(parts) != 4 {
		return nil, fmt.Errorf("license payload has %d fields, want 4", len(parts))
	}
	total, err := strconv.Atoi(parts[3])
	if err != nil {
		return nil, fmt.Errorf("license machine count is not a number: %w", err)
	}

	return &Details{
		CompanyName:  parts[0],
		Location:     parts[1],
		ServerUniqID: parts[2],
		TotalLicense: total,
	}, nil
}

// Encrypt is the inverse of Decrypt, used to mint license blobs.
func Encrypt(d *Details, key, iv []byte) (string, error) {
	plain := pkcs7Pad([]byte(strings.Join([]string{
		d.CompanyName, d.Location, d.ServerUniqID, strconv.Itoa(d.TotalLicense),
	}, "/")))

	block, err := aes.NewCipher(padKeyMaterial(key))
	if err != nil {
		return "", fmt.Errorf("failed to init license cipher: %w", err)
	}

	raw := make([]byte, len(plain))
	cipher.NewCBCEncrypter(block, padKeyMaterial(iv)).CryptBlocks(raw, plain)
	return base64.StdEncoding.EncodeToString(raw), nil
}

func pkcs7Pad(b []byte) []byte {
	pad := aes.BlockSize - len(b)%aes.BlockSize
	return append(b, bytes.Repeat([]byte{byte(pad)}, pad)...)
}

func pkcs7Unpad(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("license payload is empty")
	}
	pad := int(b[len(b)-1])
	if pad < 1 || pad > aes.BlockSize || pad > len(b) {
		return nil, fmt.Errorf("license payload has invalid padding")
	}
	for _, c := range b[len(b)-pad:] {
		if int(c) != pad {
			return nil, fmt.Errorf("license payload has invalid padding")
		}
	}
	return b[:len(b)-pad], nil
}

// machineIDPaths are tried in order before falling back to a host-derived
// composite. /host-machine-id covers containerized deployments where the
// host's id is bind-mounted in.
var machineIDPaths = []string{"/host-machine-id", "/etc/machine-id"}

// Fingerprint derives a stable lowercase hex identifier for this server.
func Fingerprint() string {
	for _, path := range machineIDPaths {
		if b, err := os.ReadFile(path); err == nil {
			if id := strings.TrimSpace(string(b)); id != "" {
				return sha256Hex(id)
			}
		}
	}

	hostname, _ := os.Hostname()
	composite := strings.Join([]string{hostname, runtime.GOOS, runtime.GOARCH, firstCPUModel()}, "|")
	return sha256Hex(composite)
}

func firstCPUModel() string {
	f, err := os.Open("/proc/cpuinfo")
	if err != nil {
		return ""
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "model name") {
			if _, value, ok := strings.Cut(line, ":"); ok {
				return strings.TrimSpace(value)
			}
		}
	}
	return ""
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Validator checks license blobs against this server's identity.
type Validator struct {
	key         []byte
	iv          []byte
	fingerprint string
}

// NewValidator creates a validator bound to the local machine fingerprint.
func NewValidator(secretKey, iv string) *Validator {
	return &Validator{
		key:         []byte(secretKey),
		iv:          []byte(iv),
		fingerprint: Fingerprint(),
	}
}

// Validate decrypts the license, checks that it was issued for this server
// and that the enabled machine count is within the licensed total.
func (v *Validator) Validate(licenseKey string, enabledMachines int) error {
	if strings.TrimSpace(licenseKey) == "" {
		return fmt.Errorf("%w: license key is empty", ErrLicenseInvalid)
	}

	details, err := Decrypt(licenseKey, v.key, v.iv)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLicenseInvalid, err)
	}

	if details.ServerUniqID != sha256Hex(v.fingerprint) {
		return fmt.Errorf("%w: license issued for a different server", ErrLicenseInvalid)
	}
	if enabledMachines > details.TotalLicense {
		return fmt.Errorf("%w: %d machines enabled, licensed for %d",
			ErrLicenseInvalid, enabledMachines, details.TotalLicense)
	}
	return nil
}
