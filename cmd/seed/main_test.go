package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-scoped-orderflow/internal/auth"
	"github.com/imrishuroy/go-scoped-orderflow/internal/dynamotest"
	"github.com/imrishuroy/go-scoped-orderflow/internal/payments"
)

const secret = "seed-test-secret-0123456789"

func TestSeed_IsRepeatable(t *testing.T) {
	fake := dynamotest.New()
	dir := payments.NewDirectory(payments.NewStore(fake, "payment-methods"), zerolog.Nop())
	issuer := auth.NewIssuer(secret, "seed", time.Hour)

	var out bytes.Buffer
	require.NoError(t, seed(context.Background(), dir, issuer, &out, zerolog.Nop()))
	require.NoError(t, seed(context.Background(), dir, issuer, &out, zerolog.Nop()))
	assert.Equal(t, len(seedMethods), fake.Len("payment-methods"))

	india, err := dir.ListEligible(context.Background(), "India")
	require.NoError(t, err)
	ids := []string{}
	for _, m := range india {
		ids = append(ids, m.ID)
	}
	assert.ElementsMatch(t, []string{"pm-cod", "pm-upi-india"}, ids)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2*len(seedUsers))

	v := auth.NewVerifier(secret, "seed")
	for i, u := range seedUsers {
		fields := strings.Split(lines[i], "\t")
		require.Len(t, fields, 4)
		assert.Equal(t, u.email, fields[0])
		p, err := v.Verify(fields[3])
		require.NoError(t, err)
		assert.Equal(t, u.principal, p)
	}
}

func TestSeed_StoreError(t *testing.T) {
	fake := dynamotest.New()
	fake.FailNext("PutItem", errors.New("dynamo down"))
	dir := payments.NewDirectory(payments.NewStore(fake, "payment-methods"), zerolog.Nop())

	err := seed(context.Background(), dir, auth.NewIssuer(secret, "", time.Hour), &bytes.Buffer{}, zerolog.Nop())
	assert.ErrorContains(t, err, "dynamo down")
}
