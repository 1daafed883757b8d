package kafka

import (
	"context"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/tls"
	"fmt"
	"hash"
	"strconv"

	"github.com/IBM/sarama"
	"github.com/aws/aws-msk-iam-sasl-signer-go/signer"
	"github.com/xdg-go/scram"
)

// SecurityConfig describes how clients authenticate to the brokers.
type SecurityConfig struct {
	SecurityProtocol string
	SASLMechanism    string
	SASLUsername     string
	SASLPassword     string
	// AWSRegion signs MSK IAM tokens.
	AWSRegion     string
	TLSSkipVerify bool
}

// Ensure XDGSCRAMClient implements sarama.SCRAMClient.
var _ sarama.SCRAMClient = (*XDGSCRAMClient)(nil)

// XDGSCRAMClient implements sarama.SCRAMClient for SCRAM authentication.
type XDGSCRAMClient struct {
	*scram.Client
	*scram.ClientConversation
	scram.HashGeneratorFcn
}

// Begin starts a SCRAM conversation.
func (x *XDGSCRAMClient) Begin(userName, password, authzID string) (err error) {
	x.Client, err = x.HashGeneratorFcn.NewClient(userName, password, authzID)
	if err != nil {
		return err
	}
	x.ClientConversation = x.Client.NewConversation()
	return nil
}

// Step answers one server challenge.
func (x *XDGSCRAMClient) Step(challenge string) (string, error) {
	return x.ClientConversation.Step(challenge)
}

// Done reports whether the conversation finished.
func (x *XDGSCRAMClient) Done() bool {
	return x.ClientConversation.Done()
}

// SHA256 returns a SHA256 hash generator.
func SHA256() scram.HashGeneratorFcn {
	return func() hash.Hash { return sha256.New() }
}

// SHA512 returns a SHA512 hash generator.
func SHA512() scram.HashGeneratorFcn {
	return func() hash.Hash { return sha512.New() }
}

// MSKAccessTokenProvider implements sarama.AccessTokenProvider for AWS MSK IAM authentication.
type MSKAccessTokenProvider struct {
	Region string
}

// Token generates an AWS MSK IAM authentication token from the default
// credential chain.
func (m *MSKAccessTokenProvider) Token() (*sarama.AccessToken, error) {
	token, expiryMs, err := signer.GenerateAuthToken(context.Background(), m.Region)
	if err != nil {
		return nil, fmt.Errorf("failed to generate MSK IAM token: %w", err)
	}

	return &sarama.AccessToken{
		Token: token,
		Extensions: map[string]string{
			"expiry": strconv.FormatInt(expiryMs, 10),
		},
	}, nil
}

func configureSecurity(config *sarama.Config, sec SecurityConfig) error {
	switch sec.SecurityProtocol {
	case "", "PLAINTEXT":
		return nil

	case "SASL_PLAINTEXT", "SASL_SSL":
		config.Net.SASL.Enable = true
		config.Net.SASL.User = sec.SASLUsername
		config.Net.SASL.Password = sec.SASLPassword

		switch sec.SASLMechanism {
		case "PLAIN":
			config.Net.SASL.Mechanism = sarama.SASLTypePlaintext

		case "SCRAM-SHA-256":
			config.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA256
			config.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient {
				return &XDGSCRAMClient{HashGeneratorFcn: SHA256()}
			}

		case "SCRAM-SHA-512":
			config.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA512
			config.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient {
				return &XDGSCRAMClient{HashGeneratorFcn: SHA512()}
			}

		case "AWS_MSK_IAM":
			config.Net.SASL.Mechanism = sarama.SASLTypeOAuth
			// Sarama validates these even for OAuth.
			config.Net.SASL.User = "token"
			config.Net.SASL.Password = "token"
			region := sec.AWSRegion
			if region == "" {
				region = "us-east-1"
			}
			config.Net.SASL.TokenProvider = &MSKAccessTokenProvider{Region: region}

		default:
			return fmt.Errorf("unsupported SASL mechanism: %s", sec.SASLMechanism)
		}

		if sec.SecurityProtocol == "SASL_SSL" {
			enableTLS(config, sec.TLSSkipVerify)
		}

	case "SSL":
		enableTLS(config, sec.TLSSkipVerify)

	default:
		return fmt.Errorf("unsupported security protocol: %s", sec.SecurityProtocol)
	}

	return nil
}

func enableTLS(config *sarama.Config, skipVerify bool) {
	config.Net.TLS.Enable = true
	config.Net.TLS.Config = &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: skipVerify,
	}
}
