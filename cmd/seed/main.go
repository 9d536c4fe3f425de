// Command seed creates the baseline payment methods and prints bearer tokens
// for the demo principals.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/imrishuroy/go-scoped-orderflow/internal/auth"
	"github.com/imrishuroy/go-scoped-orderflow/internal/aws"
	"github.com/imrishuroy/go-scoped-orderflow/internal/config"
	"github.com/imrishuroy/go-scoped-orderflow/internal/logging"
	"github.com/imrishuroy/go-scoped-orderflow/internal/payments"
)

type seedUser struct {
	email     string
	principal auth.Principal
}

var seedUsers = []seedUser{
	{"nick.admin@shield.com", auth.Principal{ID: "nick", Role: auth.RoleAdmin, Country: "India"}},
	{"captain.marvel.manager.ind@shield.com", auth.Principal{ID: "captain-marvel", Role: auth.RoleManager, Country: "India"}},
	{"captain.america.manager.us@shield.com", auth.Principal{ID: "captain-america", Role: auth.RoleManager, Country: "America"}},
	{"thanos.ind@shield.com", auth.Principal{ID: "thanos", Role: auth.RoleMember, Country: "India"}},
	{"thor.ind@shield.com", auth.Principal{ID: "thor", Role: auth.RoleMember, Country: "India"}},
	{"travis.us@shield.com", auth.Principal{ID: "travis", Role: auth.RoleMember, Country: "America"}},
}

var seedMethods = []payments.CreateInput{
	{ID: "pm-cod", Type: payments.TypeCOD, Details: map[string]interface{}{"label": "Cash on delivery"}},
	{ID: "pm-upi-india", Type: payments.TypeUPI, Details: map[string]interface{}{"vpa": "orders@upi"}, Country: "India"},
	{ID: "pm-card-america", Type: payments.TypeCard, Details: map[string]interface{}{"network": "visa"}, Country: "America"},
}

// MethodCreator is the part of the directory the seed uses.
type MethodCreator interface {
	Create(ctx context.Context, p auth.Principal, in payments.CreateInput) (*payments.PaymentMethod, error)
}

// seed is idempotent: methods that already exist are reported and skipped.
func seed(ctx context.Context, dir MethodCreator, issuer *auth.Issuer, out io.Writer, log zerolog.Logger) error {
	admin := seedUsers[0].principal
	for _, in := range seedMethods {
		_, err := dir.Create(ctx, admin, in)
		switch {
		case errors.Is(err, payments.ErrDuplicate):
			log.Info().Str("payment_method_id", in.ID).Msg("payment method exists")
		case err != nil:
			return fmt.Errorf("seed payment method %s: %w", in.ID, err)
		default:
			log.Info().Str("payment_method_id", in.ID).Msg("seeded payment method")
		}
	}

	for _, u := range seedUsers {
		tok, err := issuer.Sign(u.principal, u.email)
		if err != nil {
			return fmt.Errorf("sign token for %s: %w", u.email, err)
		}
		fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", u.email, u.principal.Role, u.principal.Country, tok)
	}
	return nil
}

func main() {
	ctx := context.Background()

	cfg, err := config.Load("")
	if err != nil {
		bootLogger := logging.New("scoped-orderflow-seed", "info", "console")
		bootLogger.Fatal().Err(err).Msg("failed to load config")
	}
	logger := logging.New(cfg.ServiceName+"-seed", cfg.LogLevel, "console")
	if err := cfg.RequireAuth(); err != nil {
		logger.Fatal().Err(err).Msg("auth is not configured")
	}

	clients, err := aws.NewAWSClients(ctx, aws.Settings{
		Region:           cfg.AWS.Region,
		EndpointOverride: cfg.AWS.EndpointOverride,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init aws clients")
	}

	dir := payments.NewDirectory(payments.NewStore(clients.DynamoDB, cfg.Tables.PaymentMethods), logger)
	issuer := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	if err := seed(ctx, dir, issuer, os.Stdout, logger); err != nil {
		logger.Fatal().Err(err).Msg("seeding failed")
	}
	logger.Info().Msg("seeding complete")
}
