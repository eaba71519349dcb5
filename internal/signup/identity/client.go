// Package identity provisions signup users in the identity directory using
// credentials from the broker.
package identity

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/identitystore"
	"github.com/aws/aws-sdk-go-v2/service/identitystore/types"

	"signup-api/internal/platform/config"
	"signup-api/internal/platform/privacy"
	"signup-api/internal/signup/models"
	dErrors "signup-api/pkg/domain-errors"
	"signup-api/pkg/requestcontext"
)

const DefaultTimeout = 5 * time.Second

// DirectoryAPI is the subset of the identity store client used here.
type DirectoryAPI interface {
	ListUsers(ctx context.Context, params *identitystore.ListUsersInput, optFns ...func(*identitystore.Options)) (*identitystore.ListUsersOutput, error)
	CreateUser(ctx context.Context, params *identitystore.CreateUserInput, optFns ...func(*identitystore.Options)) (*identitystore.CreateUserOutput, error)
	CreateGroupMembership(ctx context.Context, params *identitystore.CreateGroupMembershipInput, optFns ...func(*identitystore.Options)) (*identitystore.CreateGroupMembershipOutput, error)
}

// CredentialsProvider supplies brokered credentials. Implemented by *credentials.Broker.
type CredentialsProvider interface {
	GetCredentials(ctx context.Context) (models.CredentialsResult, error)
}

// DirectoryFactory builds a directory client bound to one set of credentials.
type DirectoryFactory func(creds *models.BrokeredCredentials, region string) DirectoryAPI

// Client creates and looks up directory users. The directory client is pooled
// and rebuilt whenever the broker reports refreshed credentials.
type Client struct {
	cfg     config.Identity
	creds   CredentialsProvider
	factory DirectoryFactory
	logger  *slog.Logger

	mu      sync.Mutex
	current DirectoryAPI
}

func New(cfg config.Identity, creds CredentialsProvider, factory DirectoryFactory, logger *slog.Logger) *Client {
	if cfg.DirectoryTimeout <= 0 {
		cfg.DirectoryTimeout = DefaultTimeout
	}
	return &Client{
		cfg:     cfg,
		creds:   creds,
		factory: factory,
		logger:  logger,
	}
}

// UserExists reports whether a directory user has email as its user name.
func (c *Client) UserExists(ctx context.Context, email string) (bool, error) {
	dir, err := c.directory(ctx)
	if err != nil {
		return false, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.DirectoryTimeout)
	defer cancel()

	out, err := dir.ListUsers(ctx, &identitystore.ListUsersInput{
		IdentityStoreId: aws.String(c.cfg.IdentityStoreID),
		Filters: []types.Filter{{
			AttributePath:  aws.String("UserName"),
			AttributeValue: aws.String(email),
		}},
	})
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "directory lookup failed")
	}
	return len(out.Users) > 0, nil
}

// CreateUser creates the user and adds it to the configured group, returning
// the directory user id. A conflict on create maps to models.ErrUserExists.
//
// Create and group membership are two calls. When the second fails the user
// exists without group access; that state is logged for manual remediation and
// reported as CodeInternal. It is not retried.
func (c *Client) CreateUser(ctx context.Context, req *models.SignupRequest) (string, error) {
	dir, err := c.directory(ctx)
	if err != nil {
		return "", err
	}

	userID, err := c.createUser(ctx, dir, req)
	if err != nil {
		return "", err
	}

	if err := c.addToGroup(ctx, dir, userID); err != nil {
		c.logger.ErrorContext(ctx, "user created without group membership, manual remediation required",
			"correlation_id", requestcontext.RequestID(ctx),
			"org_domain", privacy.EmailDomain(req.Email),
			"user_id", userID,
			"error", err,
		)
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "add user to group failed")
	}
	return userID, nil
}

func (c *Client) createUser(ctx context.Context, dir DirectoryAPI, req *models.SignupRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.DirectoryTimeout)
	defer cancel()

	out, err := dir.CreateUser(ctx, &identitystore.CreateUserInput{
		IdentityStoreId: aws.String(c.cfg.IdentityStoreID),
		UserName:        aws.String(req.Email),
		DisplayName:     aws.String(req.FirstName + " " + req.LastName),
		Name: &types.Name{
			GivenName:  aws.String(req.FirstName),
			FamilyName: aws.String(req.LastName),
		},
		Emails: []types.Email{{
			Value:   aws.String(req.Email),
			Type:    aws.String("work"),
			Primary: true,
		}},
	})
	if err != nil {
		var conflict *types.ConflictException
		if errors.As(err, &conflict) {
			return "", models.ErrUserExists
		}
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "create user failed")
	}
	if aws.ToString(out.UserId) == "" {
		return "", dErrors.New(dErrors.CodeInternal, "create user returned no user id")
	}
	return aws.ToString(out.UserId), nil
}

func (c *Client) addToGroup(ctx context.Context, dir DirectoryAPI, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.DirectoryTimeout)
	defer cancel()

	_, err := dir.CreateGroupMembership(ctx, &identitystore.CreateGroupMembershipInput{
		IdentityStoreId: aws.String(c.cfg.IdentityStoreID),
		GroupId:         aws.String(c.cfg.GroupID),
		MemberId:        &types.MemberIdMemberUserId{Value: userID},
	})
	var conflict *types.ConflictException
	if errors.As(err, &conflict) {
		return nil
	}
	return err
}

// directory validates configuration and returns a client built from current
// credentials.
func (c *Client) directory(ctx context.Context) (DirectoryAPI, error) {
	if err := c.cfg.Validate(); err != nil {
		return nil, err
	}
	res, err := c.creds.GetCredentials(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "directory credentials unavailable")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = clientFor(res, c.current, func() DirectoryAPI {
		return c.factory(res.Credentials, c.cfg.Region)
	})
	return c.current, nil
}

// clientFor keeps current unless the credentials were refreshed or no client
// exists yet. A client is never reused across a credential rotation.
func clientFor(res models.CredentialsResult, current DirectoryAPI, build func() DirectoryAPI) DirectoryAPI {
	if current != nil && !res.Refreshed {
		return current
	}
	return build()
}
