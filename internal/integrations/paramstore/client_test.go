package paramstore

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/require"
)

// fakeAPI is a simple fake implementing ssmAPI for tests.
type fakeAPI struct {
	getOut  *ssm.GetParameterOutput
	getErr  error
	lastIn  *ssm.GetParameterInput
	callCnt int
}

func (f *fakeAPI) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.lastIn = in
	f.callCnt++
	return f.getOut, f.getErr
}

func strPtr(s string) *string { return &s }

func withValue(v string) *fakeAPI {
	return &fakeAPI{getOut: &ssm.GetParameterOutput{Parameter: &types.Parameter{Name: strPtr("p"), Value: strPtr(v)}}}
}

func TestNew_NilAPI(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
}

func TestGetParameter_HappyPath(t *testing.T) {
	api := withValue(`{"token":"abc"}`)
	client, err := New(api)
	require.NoError(t, err)
	v, err := client.GetParameter(context.Background(), " /relay/open-ai-token ")
	require.NoError(t, err)
	require.Equal(t, `{"token":"abc"}`, v)
	require.Equal(t, "/relay/open-ai-token", *api.lastIn.Name)
	require.True(t, *api.lastIn.WithDecryption)
}

func TestGetParameter_MissingValue(t *testing.T) {
	api := &fakeAPI{getOut: &ssm.GetParameterOutput{Parameter: &types.Parameter{Name: strPtr("p"), Value: nil}}}
	client, err := New(api)
	require.NoError(t, err)
	_, err = client.GetParameter(context.Background(), "p")
	require.Error(t, err)
	require.Contains(t, err.Error(), "missing value")
}

func TestGetParameter_ApiError(t *testing.T) {
	client, err := New(&fakeAPI{getErr: errors.New("boom")})
	require.NoError(t, err)
	_, err = client.GetParameter(context.Background(), "p")
	require.ErrorContains(t, err, "boom")
}

func TestGetParameter_ClientNotInitialized(t *testing.T) {
	_, err := (&Client{}).GetParameter(context.Background(), "p")
	require.Error(t, err)
	require.Contains(t, err.Error(), "not initialized")
}

func TestGetParameter_EmptyName(t *testing.T) {
	client, err := New(&fakeAPI{})
	require.NoError(t, err)
	_, err = client.GetParameter(context.Background(), "  ")
	require.Error(t, err)
	require.Contains(t, err.Error(), "required")
}

func TestGetToken_JSONToken(t *testing.T) {
	client, err := New(withValue(`{"token":"sk-from-ssm"}`))
	require.NoError(t, err)
	tok, err := client.GetToken(context.Background(), "/relay/open-ai-token")
	require.NoError(t, err)
	require.Equal(t, "sk-from-ssm", tok)
}

func TestGetToken_MissingTokenField(t *testing.T) {
	client, err := New(withValue(`{"other":"value"}`))
	require.NoError(t, err)
	_, err = client.GetToken(context.Background(), "/relay/open-ai-token")
	require.Error(t, err)
	require.Contains(t, err.Error(), "is empty")
}

func TestGetToken_MalformedJSON(t *testing.T) {
	client, err := New(withValue(`{"broken`))
	require.NoError(t, err)
	_, err = client.GetToken(context.Background(), "/relay/open-ai-token")
	require.Error(t, err)
	require.Contains(t, err.Error(), "unmarshal")
}

func TestGetToken_GetterError(t *testing.T) {
	client, err := New(&fakeAPI{getErr: errors.New("ssm unavailable")})
	require.NoError(t, err)
	_, err = client.GetToken(context.Background(), "/relay/open-ai-token")
	require.ErrorContains(t, err, "ssm unavailable")
}
