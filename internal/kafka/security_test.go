package kafka

import (
	"testing"

	"github.com/IBM/sarama"
)

func TestConfigureSecurity(t *testing.T) {
	tests := []struct {
		name          string
		sec           SecurityConfig
		wantErr       bool
		wantSASL      bool
		wantTLS       bool
		wantMechanism sarama.SASLMechanism
	}{
		{name: "plaintext", sec: SecurityConfig{SecurityProtocol: "PLAINTEXT"}},
		{name: "empty defaults to plaintext", sec: SecurityConfig{}},
		{name: "ssl", sec: SecurityConfig{SecurityProtocol: "SSL"}, wantTLS: true},
		{
			name:          "sasl plain",
			sec:           SecurityConfig{SecurityProtocol: "SASL_PLAINTEXT", SASLMechanism: "PLAIN", SASLUsername: "u", SASLPassword: "p"},
			wantSASL:      true,
			wantMechanism: sarama.SASLTypePlaintext,
		},
		{
			name:          "scram 256 over ssl",
			sec:           SecurityConfig{SecurityProtocol: "SASL_SSL", SASLMechanism: "SCRAM-SHA-256", SASLUsername: "u", SASLPassword: "p"},
			wantSASL:      true,
			wantTLS:       true,
			wantMechanism: sarama.SASLTypeSCRAMSHA256,
		},
		{
			name:          "scram 512",
			sec:           SecurityConfig{SecurityProtocol: "SASL_PLAINTEXT", SASLMechanism: "SCRAM-SHA-512"},
			wantSASL:      true,
			wantMechanism: sarama.SASLTypeSCRAMSHA512,
		},
		{
			name:          "msk iam",
			sec:           SecurityConfig{SecurityProtocol: "SASL_SSL", SASLMechanism: "AWS_MSK_IAM", AWSRegion: "eu-west-1"},
			wantSASL:      true,
			wantTLS:       true,
			wantMechanism: sarama.SASLTypeOAuth,
		},
		{name: "unknown mechanism", sec: SecurityConfig{SecurityProtocol: "SASL_SSL", SASLMechanism: "GSSAPI"}, wantErr: true},
		{name: "unknown protocol", sec: SecurityConfig{SecurityProtocol: "KERBEROS"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := sarama.NewConfig()
			err := configureSecurity(cfg, tt.sec)
			if (err != nil) != tt.wantErr {
				t.Fatalf("configureSecurity() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if cfg.Net.SASL.Enable != tt.wantSASL {
				t.Errorf("SASL.Enable = %v, want %v", cfg.Net.SASL.Enable, tt.wantSASL)
			}
			if cfg.Net.TLS.Enable != tt.wantTLS {
				t.Errorf("TLS.Enable = %v, want %v", cfg.Net.TLS.Enable, tt.wantTLS)
			}
			if tt.wantSASL && cfg.Net.SASL.Mechanism != tt.wantMechanism {
				t.Errorf("SASL.Mechanism = %v, want %v", cfg.Net.SASL.Mechanism, tt.wantMechanism)
			}
		})
	}
}

func TestConfigureSecurity_MSKRegion(t *testing.T) {
	cfg := sarama.NewConfig()
	if err := configureSecurity(cfg, SecurityConfig{SecurityProtocol: "SASL_SSL", SASLMechanism: "AWS_MSK_IAM"}); err != nil {
		t.Fatalf("configureSecurity() error = %v", err)
	}
	provider, ok := cfg.Net.SASL.TokenProvider.(*MSKAccessTokenProvider)
	if !ok {
		t.Fatalf("TokenProvider = %T, want *MSKAccessTokenProvider", cfg.Net.SASL.TokenProvider)
	}
	if provider.Region != "us-east-1" {
		t.Errorf("Region = %s, want us-east-1", provider.Region)
	}
}

func TestXDGSCRAMClient(t *testing.T) {
	for name, gen := range map[string]func() *XDGSCRAMClient{
		"sha256": func() *XDGSCRAMClient { return &XDGSCRAMClient{HashGeneratorFcn: SHA256()} },
		"sha512": func() *XDGSCRAMClient { return &XDGSCRAMClient{HashGeneratorFcn: SHA512()} },
	} {
		t.Run(name, func(t *testing.T) {
			client := gen()
			if err := client.Begin("user", "pencil", ""); err != nil {
				t.Fatalf("Begin() error = %v", err)
			}
			first, err := client.Step("")
			if err != nil {
				t.Fatalf("Step() error = %v", err)
			}
			if first == "" {
				t.Error("Step() returned empty client-first message")
			}
			if client.Done() {
				t.Error("Done() = true after first step")
			}
		})
	}
}

func TestNewProducerConfig(t *testing.T) {
	cfg, err := NewProducerConfig(SecurityConfig{SecurityProtocol: "PLAINTEXT"})
	if err != nil {
		t.Fatalf("NewProducerConfig() error = %v", err)
	}
	if !cfg.Producer.Idempotent || cfg.Producer.RequiredAcks != sarama.WaitForAll {
		t.Errorf("producer config not idempotent with full acks: %+v", cfg.Producer)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}

	if _, err := NewProducerConfig(SecurityConfig{SecurityProtocol: "KERBEROS"}); err == nil {
		t.Error("NewProducerConfig() error = nil, want unsupported protocol")
	}
}
