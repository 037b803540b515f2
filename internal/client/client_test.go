package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odata-gateway/go/internal/constants"
	"github.com/odata-gateway/go/internal/models"
	"github.com/odata-gateway/go/internal/transport"
)

func newTestClient(t *testing.T, serverURL, version, clientID string) *Client {
	t.Helper()
	endpoint := models.ServiceEndpointConfig{
		ServiceName:      "ZTEST_SRV",
		ServiceNamespace: "zorders",
		EntityName:       "Orders",
		ODataVersion:     version,
	}
	c, err := New(
		models.SystemProfile{Hostname: serverURL, ClientID: clientID},
		endpoint,
		models.Credentials{Username: "user", Password: "pass"},
		Options{},
	)
	require.NoError(t, err)
	return c
}

func TestNewValidation(t *testing.T) {
	_, err := New(models.SystemProfile{}, models.ServiceEndpointConfig{}, models.Credentials{}, Options{})
	require.Error(t, err)
	require.Equal(t, KindValidation, ErrorKindOf(err))

	_, err = New(
		models.SystemProfile{Hostname: "host"},
		models.ServiceEndpointConfig{ServiceName: "S", ODataVersion: "v4"},
		models.Credentials{}, Options{})
	require.Error(t, err) // v4 without namespace

	_, err = New(
		models.SystemProfile{Hostname: "host"},
		models.ServiceEndpointConfig{ServiceName: "S", ODataVersion: "v7"},
		models.Credentials{}, Options{})
	require.Error(t, err)
}

func TestServicePathAndURLs(t *testing.T) {
	v2 := newTestClient(t, "https://sap.example.com", "v2", "100")
	require.Equal(t, "ZTEST_SRV", v2.ServicePath())
	require.Equal(t, "https://sap.example.com/sap/opu/odata/sap/ZTEST_SRV", v2.ServiceURL())
	require.Equal(t,
		"https://sap.example.com/sap/opu/odata/sap/ZTEST_SRV/Orders('5')/Items",
		v2.RequestURL("Orders", "('5')", "Items"))

	v4 := newTestClient(t, "sap.example.com", "v4", "100")
	require.Equal(t, "zorders/srvd_a2x/sap/ZTEST_SRV/0001", v4.ServicePath())
	require.Equal(t,
		"https://sap.example.com/sap/opu/odata4/sap/zorders/srvd_a2x/sap/ZTEST_SRV/0001",
		v4.ServiceURL())
}

func TestExecuteInjectsTenantAndFormat(t *testing.T) {
	var gotQuery map[string][]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"d":{"results":[]}}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, "v2", "100")
	_, err := c.Execute(context.Background(), "GET", c.RequestURL("Orders", "", ""), map[string]string{"$top": "5"}, nil)
	require.NoError(t, err)

	require.Equal(t, []string{"100"}, gotQuery["sap-client"])
	require.Equal(t, []string{"json"}, gotQuery["$format"])
	require.Equal(t, []string{"5"}, gotQuery["$top"])
}

func TestExecuteSkipsFormatForV4AndMetadata(t *testing.T) {
	queries := map[string]string{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		queries[r.URL.Path] = r.URL.Query().Get("$format")
		w.Header().Set("Content-Type", "application/xml")
		w.Write([]byte(`<edmx:Edmx xmlns:edmx="http://schemas.microsoft.com/ado/2007/06/edmx"></edmx:Edmx>`))
	}))
	defer server.Close()

	v2 := newTestClient(t, server.URL, "v2", "")
	_, err := v2.Execute(context.Background(), "GET", v2.ServiceURL()+"/$metadata", nil, nil)
	require.NoError(t, err)

	for path, format := range queries {
		require.Empty(t, format, path)
	}
}

func TestExecuteMutationRunsHandshakeOnce(t *testing.T) {
	var fetches, posts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == "GET" && r.Header.Get("X-CSRF-Token") == "Fetch" {
			atomic.AddInt32(&fetches, 1)
			http.SetCookie(w, &http.Cookie{Name: "SAP_SESSIONID", Value: "abc"})
			w.Header().Set("X-CSRF-Token", "tok-123")
			w.WriteHeader(http.StatusOK)
			return
		}
		if r.Method == "POST" {
			atomic.AddInt32(&posts, 1)
			if r.Header.Get("X-CSRF-Token") != "tok-123" {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			cookie, err := r.Cookie("SAP_SESSIONID")
			if err != nil || cookie.Value != "abc" {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"d":{"OrderId":"1"}}`))
			return
		}
		w.WriteHeader(http.StatusMethodNotAllowed)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, "v2", "")
	resp, err := c.Execute(context.Background(), "POST",
		c.RequestURL("Orders", "", ""), nil, map[string]interface{}{"OrderId": "1"})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.EqualValues(t, 1, atomic.LoadInt32(&fetches))
	require.EqualValues(t, 1, atomic.LoadInt32(&posts))
}

func TestCSRFHandshakeFallsBackToServiceRoot(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-CSRF-Token") == "Fetch" {
			if r.URL.Path == "/sap/opu/odata/sap/ZTEST_SRV/$metadata" {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Header().Set("X-CSRF-Token", "tok-root")
			w.WriteHeader(http.StatusOK)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, "v2", "")
	session, err := c.csrfHandshake(context.Background(), c.ServiceURL())
	require.NoError(t, err)
	require.Equal(t, "tok-root", session.token)
}

func TestCSRFHandshakeAuthorizationFailure(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, "v2", "")
	_, err := c.csrfHandshake(context.Background(), c.ServiceURL())
	require.Error(t, err)
	require.Equal(t, KindAuthorization, ErrorKindOf(err))
	// Exactly one fallback probe after the metadata rejection.
	require.EqualValues(t, 2, atomic.LoadInt32(&requests))
}

func TestExecuteClassifiesErrorStatuses(t *testing.T) {
	cases := []struct {
		status int
		kind   ErrorKind
	}{
		{401, KindAuthentication},
		{403, KindAuthorization},
		{404, KindNotFound},
		{500, KindServer},
		{503, KindServer},
	}
	for _, tc := range cases {
		status := tc.status
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			w.Write([]byte(`{"error":{"message":"backend says no"}}`))
		}))

		c := newTestClient(t, server.URL, "v2", "")
		_, err := c.Execute(context.Background(), "GET", c.RequestURL("Orders", "", ""), nil, nil)
		require.Error(t, err)
		require.Equal(t, tc.kind, ErrorKindOf(err))
		require.Equal(t, tc.status, StatusCodeOf(err))
		require.Contains(t, err.Error(), "backend says no")
		server.Close()
	}
}

func TestExecuteDetectsErrorInSuccessResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"error":{"message":"Service ZTEST_SRV not published"}}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, "v2", "")
	_, err := c.Execute(context.Background(), "GET", c.RequestURL("Orders", "", ""), nil, nil)
	require.Error(t, err)
	require.Equal(t, KindNotFound, ErrorKindOf(err))
}

func TestExecuteSniffsHTMLErrorPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body>Internal Server Error while processing</body></html>`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, "v2", "")
	_, err := c.Execute(context.Background(), "GET", c.RequestURL("Orders", "", ""), nil, nil)
	require.Error(t, err)
	require.Equal(t, KindGeneric, ErrorKindOf(err))
}

func TestExecuteSniffsXMLErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		w.Write([]byte(`<message>An exception occurred: service unavailable</message>`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, "v2", "")
	_, err := c.Execute(context.Background(), "GET", c.RequestURL("Orders", "", ""), nil, nil)
	require.Error(t, err)
	require.Equal(t, KindGeneric, ErrorKindOf(err))
}

func TestMetadataDocumentSkipsKeywordScan(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		w.Write([]byte(`<edmx:Edmx xmlns:edmx="http://docs.oasis-open.org/odata/ns/edmx">` +
			`<!-- raises an exception when the entity is not found -->` +
			`</edmx:Edmx>`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, "v2", "")
	url := c.RequestURL("", "", "") + "/$metadata"
	resp, err := c.Execute(context.Background(), "GET", url, nil, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGetEntityCountPlainText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/sap/opu/odata/sap/ZTEST_SRV/Orders/$count", r.URL.Path)
		w.Write([]byte("17"))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, "v2", "")
	n, err := c.GetEntityCount(context.Background(), "")
	require.NoError(t, err)
	require.EqualValues(t, 17, n)
}

func TestGetEntityCountV2Fallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/sap/opu/odata/sap/ZTEST_SRV/Orders/$count" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		require.Equal(t, "allpages", r.URL.Query().Get("$inlinecount"))
		require.Equal(t, "1", r.URL.Query().Get("$top"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"d":{"results":[{"Id":"1"}],"__count":"23"}}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, "v2", "")
	n, err := c.GetEntityCount(context.Background(), "")
	require.NoError(t, err)
	require.EqualValues(t, 23, n)
}

func TestGetDataNormalizesV2(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"d":{"results":[{"Id":"1"},{"Id":"2"}]}}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, "v2", "")
	data, err := c.GetData(context.Background(), DataQuery{})
	require.NoError(t, err)
	require.Len(t, data["value"], 2)
}

func TestFetchAllFollowsNextLinks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/$count") {
			w.Write([]byte("2"))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("$skiptoken") == "" {
			w.Write([]byte(`{"d":{"results":[{"Id":"1"}],"__next":"Orders?$skiptoken=1"}}`))
			return
		}
		w.Write([]byte(`{"d":{"results":[{"Id":"2"}]}}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, "v2", "")
	records, err := c.FetchAll(context.Background(), nil, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
}

func TestFetchAllV2SkipWindowFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/$count") {
			w.Write([]byte("3"))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("$skip") == "" {
			// First page: no continuation link from the server.
			w.Write([]byte(`{"d":{"results":[{"Id":"1"},{"Id":"2"}]}}`))
			return
		}
		require.Equal(t, "2", r.URL.Query().Get("$skip"))
		w.Write([]byte(`{"d":{"results":[{"Id":"3"}]}}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, "v2", "")
	records, err := c.FetchAll(context.Background(), nil, 10)
	require.NoError(t, err)
	require.Len(t, records, 3)
}

func TestFetchAllEmptySet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/$count") {
			w.Write([]byte("0"))
			return
		}
		t.Error("no data fetch expected for an empty set")
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, "v2", "")
	records, err := c.FetchAll(context.Background(), nil, 0)
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestGetMetadataParsesAndCaches(t *testing.T) {
	const edmx = `<edmx:Edmx xmlns:edmx="http://schemas.microsoft.com/ado/2007/06/edmx">
  <Schema xmlns="http://schemas.microsoft.com/ado/2008/09/edm" Namespace="Z">
    <EntityType Name="Order">
      <Property Name="OrderId" Type="Edm.String"/>
      <Property Name="Amount" Type="Edm.Decimal"/>
    </EntityType>
  </Schema>
</edmx:Edmx>`

	var fetches int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&fetches, 1)
		w.Header().Set("Content-Type", "application/xml")
		w.Write([]byte(edmx))
	}))
	defer server.Close()

	endpoint := models.ServiceEndpointConfig{
		ServiceName:  "ZTEST_SRV",
		EntityName:   "Orders",
		ODataVersion: constants.ODataV2,
	}
	cache := transport.NewMetadataCache(time.Minute)
	c, err := New(models.SystemProfile{Hostname: server.URL}, endpoint, models.Credentials{}, Options{Cache: cache})
	require.NoError(t, err)

	doc, err := c.GetMetadata(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"OrderId", "Amount"}, doc.EntityTypes["Order"])

	_, err = c.GetMetadata(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, atomic.LoadInt32(&fetches))
}

func TestExecuteRejectsUnknownMethod(t *testing.T) {
	c := newTestClient(t, "https://sap.example.com", "v2", "")
	_, err := c.Execute(context.Background(), "TRACE", c.ServiceURL(), nil, nil)
	require.Error(t, err)
	require.Equal(t, KindValidation, ErrorKindOf(err))
}
