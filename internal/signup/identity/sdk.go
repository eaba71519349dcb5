package identity

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/identitystore"

	"signup-api/internal/signup/models"
)

// NewSDKFactory returns a DirectoryFactory producing identity store clients that
// share base (HTTP client, retryer) but sign with the brokered credentials.
func NewSDKFactory(base aws.Config) DirectoryFactory {
	return func(creds *models.BrokeredCredentials, region string) DirectoryAPI {
		return identitystore.NewFromConfig(base, func(o *identitystore.Options) {
			o.Region = region
			o.Credentials = credentials.NewStaticCredentialsProvider(
				creds.AccessKeyID,
				creds.SecretAccessKey,
				creds.SessionToken,
			)
		})
	}
}
