package melcloud

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL})
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient(Config{})
	if c.baseURL != DefaultBaseURL {
		t.Errorf("baseURL = %q, want %q", c.baseURL, DefaultBaseURL)
	}
	if c.appVersion != defaultAppVersion {
		t.Errorf("appVersion = %q, want %q", c.appVersion, defaultAppVersion)
	}
	if c.httpClient.Timeout != defaultTimeout {
		t.Errorf("timeout = %v, want %v", c.httpClient.Timeout, defaultTimeout)
	}

	c = NewClient(Config{BaseURL: "http://example.test/api"})
	if c.baseURL != "http://example.test/api/" {
		t.Errorf("baseURL = %q, want trailing slash", c.baseURL)
	}
}

func TestLogin(t *testing.T) {
	var form map[string]string
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/Login/ClientLogin" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("ParseForm: %v", err)
		}
		form = map[string]string{
			"Email":    r.PostForm.Get("Email"),
			"Password": r.PostForm.Get("Password"),
			"Persist":  r.PostForm.Get("Persist"),
			"Language": r.PostForm.Get("Language"),
		}
		io.WriteString(w, `{"ErrorId":null,"LoginData":{"ContextKey":"abc123","UseFahrenheit":true}}`)
	})
	c.language = 4

	sess, err := c.Login(context.Background(), "user@example.com", "secret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if sess.Token() != "abc123" {
		t.Errorf("Token = %q, want abc123", sess.Token())
	}
	if !sess.UseFahrenheit() {
		t.Error("UseFahrenheit = false, want true")
	}
	if form["Email"] != "user@example.com" || form["Password"] != "secret" {
		t.Errorf("credentials not sent: %v", form)
	}
	if form["Persist"] != "true" || form["Language"] != "4" {
		t.Errorf("form = %v", form)
	}
}

func TestLogin_Rejected(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"ErrorId":1,"LoginData":null}`)
	})

	_, err := c.Login(context.Background(), "user", "wrong")
	if !errors.Is(err, ErrLoginFailed) {
		t.Fatalf("err = %v, want ErrLoginFailed", err)
	}
}

func TestListDevices_WalksBuildingTree(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get(contextKeyHeader); got != "tok" {
			t.Errorf("%s = %q, want tok", contextKeyHeader, got)
		}
		io.WriteString(w, `[{
			"ID": 7,
			"Name": "Home",
			"Structure": {
				"Devices": [{"DeviceID": 1, "DeviceName": "Hall", "SerialNumber": "S1"}],
				"Floors": [{
					"Devices": [{"DeviceID": 2, "DeviceName": "Landing"}],
					"Areas": [{"Devices": [{"DeviceID": 3, "DeviceName": "Bedroom"}]}]
				}],
				"Areas": [{"Devices": [{"DeviceID": 4, "DeviceName": "Garage"}]}]
			}
		}]`)
	})

	devices, err := c.ListDevices(context.Background(), "tok")
	if err != nil {
		t.Fatalf("ListDevices: %v", err)
	}

	wantIDs := []int{1, 2, 3, 4}
	if len(devices) != len(wantIDs) {
		t.Fatalf("got %d devices, want %d", len(devices), len(wantIDs))
	}
	for i, id := range wantIDs {
		if devices[i].ID != id {
			t.Errorf("devices[%d].ID = %d, want %d", i, devices[i].ID, id)
		}
		if devices[i].BuildingID != 7 {
			t.Errorf("devices[%d].BuildingID = %d, want 7", i, devices[i].BuildingID)
		}
	}
	if devices[0].SerialNumber != "S1" {
		t.Errorf("SerialNumber = %q, want S1", devices[0].SerialNumber)
	}
}

func TestFetchDevice(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/Device/Get" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.URL.Query().Get("id") != "42" || r.URL.Query().Get("buildingID") != "9" {
			t.Errorf("query = %q", r.URL.RawQuery)
		}
		io.WriteString(w, `{"DeviceID":42,"Power":true,"OperationMode":3,"RoomTemperature":23.5,
			"SetTemperature":21,"SetFanSpeed":2,"NumberOfFanSpeeds":5,"VaneHorizontal":3,
			"VaneVertical":4,"EffectiveFlags":0,"LastCommunication":"2024-01-01T00:00:00"}`)
	})

	snap, err := c.FetchDevice(context.Background(), "tok", 42, 9)
	if err != nil {
		t.Fatalf("FetchDevice: %v", err)
	}
	if !snap.Power || snap.OperationMode != ModeCool || snap.RoomTemperature != 23.5 {
		t.Errorf("snapshot = %+v", snap)
	}
	if _, ok := snap.Extra("LastCommunication"); !ok {
		t.Error("unknown field LastCommunication was not preserved")
	}
}

func TestFetchDevice_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"html error page", http.StatusOK, "<!DOCTYPE html><html><body>Error</body></html>", ErrMalformedResponse},
		{"not json", http.StatusOK, "garbage", ErrMalformedResponse},
		{"unauthorized", http.StatusUnauthorized, "", ErrUnauthorized},
		{"rate limited", http.StatusTooManyRequests, "", ErrRateLimited},
		{"server error", http.StatusInternalServerError, "", ErrUnexpectedStatus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				if tt.status == http.StatusTooManyRequests {
					w.Header().Set("Retry-After", "30")
				}
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			})

			_, err := c.FetchDevice(context.Background(), "tok", 1, 1)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestFetchDevice_NoToken(t *testing.T) {
	c := NewClient(Config{BaseURL: "http://127.0.0.1:0"})
	if _, err := c.FetchDevice(context.Background(), "", 1, 1); !errors.Is(err, ErrNoSession) {
		t.Fatalf("err = %v, want ErrNoSession", err)
	}
}

func TestUpdateDevice_SendsWholeSnapshot(t *testing.T) {
	var got map[string]json.RawMessage
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/Device/SetAta" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		io.WriteString(w, `{}`)
	})

	var snap Snapshot
	if err := json.Unmarshal([]byte(`{"DeviceID":5,"Power":false,"Offline":false,"Units":[{"Model":"MSZ"}]}`), &snap); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	snap.Power = true
	snap.EffectiveFlags = FlagPower

	if err := c.UpdateDevice(context.Background(), "tok", &snap); err != nil {
		t.Fatalf("UpdateDevice: %v", err)
	}
	if string(got["Power"]) != "true" || string(got["EffectiveFlags"]) != "1" {
		t.Errorf("Power=%s EffectiveFlags=%s", got["Power"], got["EffectiveFlags"])
	}
	if _, ok := got["Units"]; !ok {
		t.Error("preserved field Units missing from update body")
	}
}

func TestUpdateDisplayUnits(t *testing.T) {
	var body string
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/User/UpdateApplicationOptions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		b, _ := io.ReadAll(r.Body)
		body = string(b)
	})

	if err := c.UpdateDisplayUnits(context.Background(), "tok", true); err != nil {
		t.Fatalf("UpdateDisplayUnits: %v", err)
	}
	for _, want := range []string{`"UseFahrenheit":true`, `"EmailCommsErrors":1`, `"Fred":4`} {
		if !strings.Contains(body, want) {
			t.Errorf("body %s missing %s", body, want)
		}
	}
}

func TestSnapshot_CloneIsDeep(t *testing.T) {
	var snap Snapshot
	if err := json.Unmarshal([]byte(`{"DeviceID":1,"Name":"a"}`), &snap); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	cp := snap.Clone()
	cp.Power = true
	cp.extra["Name"][1] = 'b'

	if snap.Power {
		t.Error("mutating clone changed original Power")
	}
	if v, _ := snap.Extra("Name"); string(v) != `"a"` {
		t.Errorf("original extra = %s, want \"a\"", v)
	}
}

func TestSession_SetUseFahrenheit(t *testing.T) {
	s := NewSession("tok", false)
	s.SetUseFahrenheit(true)
	if !s.UseFahrenheit() {
		t.Error("UseFahrenheit = false after SetUseFahrenheit(true)")
	}
}
