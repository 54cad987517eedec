package callback_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/framestudio/pipeline-core/internal/callback"
)

func TestValidateURLRejectsBadScheme(t *testing.T) {
	err := callback.ValidateURL("ftp://allowed.com/hook", "production", nil)
	assert.Error(t, err)
}

func TestValidateURLRejectsLocalhostOutsideDevelopment(t *testing.T) {
	err := callback.ValidateURL("http://localhost:8080/hook", "production", nil)
	assert.Error(t, err)
}

func TestValidateURLAllowsLocalhostInDevelopment(t *testing.T) {
	err := callback.ValidateURL("http://localhost:8080/hook", "development", nil)
	assert.NoError(t, err)
}

func TestValidateURLRejectsPrivateIPLiteral(t *testing.T) {
	for _, host := range []string{"10.0.0.5", "172.16.1.1", "192.168.1.1", "169.254.1.1", "127.0.0.1"} {
		err := callback.ValidateURL("http://"+host+"/hook", "production", nil)
		assert.Error(t, err, "host %s should be rejected as private", host)
	}
}

func TestValidateURLAllowListSubdomainMatch(t *testing.T) {
	err := callback.ValidateURL("https://x.allowed.com/hook", "production", []string{"allowed.com"})
	assert.NoError(t, err)
}

func TestValidateURLAllowListRejectsLookalikeHost(t *testing.T) {
	err := callback.ValidateURL("https://allowedcom/hook", "production", []string{"allowed.com"})
	assert.Error(t, err)
}

func TestValidateURLEmptyAllowListPermitsAnyPublicHost(t *testing.T) {
	err := callback.ValidateURL("https://203.0.113.5/hook", "production", nil)
	assert.NoError(t, err)
}
