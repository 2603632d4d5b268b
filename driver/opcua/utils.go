package opcua

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"
	"github.com/sirupsen/logrus"
)

const clientApplicationURI = "urn:opcua-demo:client"

// clientOptions erstellt die OPC UA Optionen für den gewählten Endpunkt.
func clientOptions(device DeviceConfig, ep *ua.EndpointDescription) ([]opcua.Option, error) {
	mode := getSecurityMode(device.SecurityMode)
	opts := []opcua.Option{
		opcua.SecurityMode(mode),
		opcua.SecurityPolicy(getSecurityPolicy(device.SecurityPolicy)),
		opcua.RequestTimeout(device.requestTimeout()),
		opcua.AutoReconnect(false),
		opcua.ApplicationURI(clientApplicationURI),
	}

	// Priorität: Username/Password > Anonyme Authentifizierung
	tokenType := ua.UserTokenTypeAnonymous
	if device.Username != "" && device.Password != "" {
		tokenType = ua.UserTokenTypeUserName
		opts = append(opts, opcua.AuthUsername(device.Username, device.Password))
		logrus.Debugf("OPC-UA: using username authentication for %s (user: %s)", device.Name, device.Username)
	} else {
		opts = append(opts, opcua.AuthAnonymous())
	}
	if ep != nil {
		opts = append(opts, opcua.SecurityFromEndpoint(ep, tokenType))
	}

	// Bei SecurityMode "None" keine Zertifikate benötigt
	if mode == ua.MessageSecurityModeNone {
		return opts, nil
	}

	if device.CertFile != "" && device.KeyFile != "" {
		return append(opts, opcua.CertificateFile(device.CertFile), opcua.PrivateKeyFile(device.KeyFile)), nil
	}

	cert, err := sessionCertificate()
	if err != nil {
		return nil, err
	}
	pk, ok := cert.PrivateKey.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("unexpected type of private key, expected *rsa.PrivateKey")
	}
	return append(opts, opcua.PrivateKey(pk), opcua.Certificate(cert.Certificate[0])), nil
}

var (
	certOnce sync.Once
	certVal  *tls.Certificate
	certErr  error
)

// sessionCertificate erzeugt einmal pro Prozess ein Client-Zertifikat.
func sessionCertificate() (*tls.Certificate, error) {
	certOnce.Do(func() {
		certVal, certErr = generateCert()
	})
	return certVal, certErr
}

// generateCert erzeugt ein neues selbstsigniertes Zertifikat sowie den privaten Schlüssel.
func generateCert() (*tls.Certificate, error) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("failed to generate private key: %s", err)
	}

	notBefore := time.Now()
	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial number: %s", err)
	}

	template := x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			Organization: []string{"opcua-demo client"},
		},
		NotBefore:             notBefore,
		NotAfter:              notBefore.Add(5 * 365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageContentCommitment | x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature | x509.KeyUsageDataEncipherment | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
	}
	if uri, err := url.Parse(clientApplicationURI); err == nil {
		template.URIs = append(template.URIs, uri)
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, priv.Public(), priv)
	if err != nil {
		return nil, fmt.Errorf("failed to create certificate: %s", err)
	}
	return &tls.Certificate{Certificate: [][]byte{der}, PrivateKey: priv}, nil
}

// getSecurityMode wandelt den Modus-String in einen ua.MessageSecurityMode um.
func getSecurityMode(mode string) ua.MessageSecurityMode {
	switch strings.ToLower(mode) {
	case "sign":
		return ua.MessageSecurityModeSign
	case "sign&encrypt", "signandencrypt":
		return ua.MessageSecurityModeSignAndEncrypt
	default:
		return ua.MessageSecurityModeNone
	}
}

func getSecurityPolicy(policy string) string {
	switch strings.ToLower(policy) {
	case "basic128rsa15":
		return ua.SecurityPolicyURIBasic128Rsa15
	case "basic256":
		return ua.SecurityPolicyURIBasic256
	case "basic256sha256":
		return ua.SecurityPolicyURIBasic256Sha256
	default:
		return ua.SecurityPolicyURINone
	}
}

// ValidateAndFixOPCUAAddress validiert OPC-UA Adressen und ergänzt den Standardport 4840.
func ValidateAndFixOPCUAAddress(address string) (string, error) {
	address = strings.TrimSpace(address)
	if !strings.HasPrefix(address, "opc.tcp://") {
		return "", fmt.Errorf("invalid OPC-UA address %q: must start with 'opc.tcp://'", address)
	}

	rest := strings.TrimPrefix(address, "opc.tcp://")
	hostPort, path := rest, ""
	if i := strings.Index(rest, "/"); i >= 0 {
		hostPort, path = rest[:i], rest[i:]
	}
	if hostPort == "" {
		return "", fmt.Errorf("invalid OPC-UA address %q: missing host part", address)
	}

	if _, _, err := net.SplitHostPort(hostPort); err != nil {
		// kein Port angegeben
		hostPort = net.JoinHostPort(strings.Trim(hostPort, "[]"), "4840")
	}
	host, port, err := net.SplitHostPort(hostPort)
	if err != nil || host == "" {
		return "", fmt.Errorf("invalid host:port in %q", address)
	}
	if _, err := net.LookupPort("tcp", port); err != nil {
		return "", fmt.Errorf("invalid port in %q: %v", address, err)
	}

	return "opc.tcp://" + hostPort + path, nil
}
