package goble

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/srg/penlink/internal/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	penService = "ed6b0d7a-3b1f-4a8e-9c4f-000000000001"
	buttonUUID = "6c290d2e-1c03-aca1-ab48-a9b908bae79e"
)

// fakeClient overrides only the ble.Client methods the backend calls.
type fakeClient struct {
	ble.Client

	profile      *ble.Profile
	discoverErr  error
	discoverHold chan struct{}
	subscribeErr error
	handler      ble.NotificationHandler
	lost         chan struct{}
	cancels      int
}

func newFakeClient(profile *ble.Profile) *fakeClient {
	return &fakeClient{profile: profile, lost: make(chan struct{})}
}

func (c *fakeClient) DiscoverProfile(bool) (*ble.Profile, error) {
	if c.discoverHold != nil {
		<-c.discoverHold
	}
	return c.profile, c.discoverErr
}

func (c *fakeClient) Subscribe(_ *ble.Characteristic, _ bool, h ble.NotificationHandler) error {
	c.handler = h
	return c.subscribeErr
}

func (c *fakeClient) CancelConnection() error {
	c.cancels++
	select {
	case <-c.lost:
	default:
		close(c.lost)
	}
	return nil
}

func (c *fakeClient) Disconnected() <-chan struct{} {
	return c.lost
}

type fakeDevice struct {
	ble.Device

	client  ble.Client
	dialErr error
	dialed  []string
}

func (d *fakeDevice) Dial(_ context.Context, a ble.Addr) (ble.Client, error) {
	d.dialed = append(d.dialed, a.String())
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	return d.client, nil
}

func penProfile(props ble.Property, withCCCD bool) *ble.Profile {
	char := ble.NewCharacteristic(ble.MustParse(buttonUUID))
	char.Property = props
	if withCCCD {
		char.CCCD = ble.NewDescriptor(ble.ClientCharacteristicConfigUUID)
	}
	svc := ble.NewService(ble.MustParse(penService))
	svc.Characteristics = []*ble.Characteristic{char}
	return &ble.Profile{Services: []*ble.Service{svc}}
}

func withDevice(t *testing.T, dev ble.Device, err error) {
	t.Helper()
	orig := DeviceFactory
	DeviceFactory = func(int) (ble.Device, error) { return dev, err }
	t.Cleanup(func() { DeviceFactory = orig })
}

func TestParseAdapter(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"hci0", 0, false},
		{"HCI1", 1, false},
		{"2", 2, false},
		{"", 0, false},
		{"hcix", 0, true},
		{"hci-1", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAdapter(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRadio_DialDiscoverSubscribe(t *testing.T) {
	// GOAL: Verify a full HCI link round-trip through the device interfaces
	//
	// TEST SCENARIO: dial -> discover pen service -> subscribe button -> notification reaches handler

	client := newFakeClient(penProfile(ble.CharNotify, true))
	dev := &fakeDevice{client: client}
	withDevice(t, dev, nil)
	logger, _ := test.NewNullLogger()

	radio, err := NewRadio("hci0", logger)
	require.NoError(t, err)

	link, err := radio.Dial(context.Background(), "aa:bb:cc:dd:ee:ff")
	require.NoError(t, err)
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", link.Address())
	require.Len(t, dev.dialed, 1)

	connected, err := radio.IsConnected("AA:BB:CC:DD:EE:FF")
	require.NoError(t, err)
	assert.True(t, connected, "dialed link MUST be reported connected")

	svc, err := link.DiscoverService(context.Background(), penService)
	require.NoError(t, err)
	assert.True(t, device.EqualUUID(penService, svc.UUID()))

	char, err := svc.Characteristic(buttonUUID)
	require.NoError(t, err)

	var got []byte
	require.NoError(t, char.Subscribe(func(data []byte) { got = data }))
	require.NotNil(t, client.handler)
	client.handler([]byte{0x00})
	assert.Equal(t, []byte{0x00}, got)

	require.NoError(t, link.Close())
	require.NoError(t, link.Close())
	assert.Equal(t, 1, client.cancels, "Close MUST cancel the connection once")

	assert.Eventually(t, func() bool {
		ok, _ := radio.IsConnected("aa:bb:cc:dd:ee:ff")
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestRadio_DialErrorsAreNormalized(t *testing.T) {
	withDevice(t, &fakeDevice{dialErr: errors.New("can't init hci: no devices available: (hci0: can't down device: no such device)")}, nil)
	logger, _ := test.NewNullLogger()
	radio, err := NewRadio("hci0", logger)
	require.NoError(t, err)

	_, err = radio.Dial(context.Background(), "aa:bb:cc:dd:ee:ff")

	require.Error(t, err)
	assert.ErrorIs(t, err, device.ErrBluetoothOff)
}

func TestRadio_DialRejectsEmptyAddress(t *testing.T) {
	withDevice(t, &fakeDevice{}, nil)
	radio, err := NewRadio("hci0", nil)
	require.NoError(t, err)

	_, err = radio.Dial(context.Background(), " ")
	assert.Error(t, err)
}

func TestRadio_AdapterPower(t *testing.T) {
	withDevice(t, nil, errors.New("can't init hci"))
	radio, err := NewRadio("hci0", nil)
	require.NoError(t, err)

	powered, err := radio.AdapterPowered()
	assert.False(t, powered)
	assert.ErrorIs(t, err, device.ErrBluetoothOff)
	assert.ErrorIs(t, radio.SetAdapterPowered(false), device.ErrUnsupported)
}

func TestRadio_DisconnectProfilesClosesLink(t *testing.T) {
	client := newFakeClient(penProfile(ble.CharNotify, true))
	withDevice(t, &fakeDevice{client: client}, nil)
	radio, err := NewRadio("hci0", nil)
	require.NoError(t, err)

	require.NoError(t, radio.DisconnectProfiles("aa:bb:cc:dd:ee:ff"), "unknown peripheral MUST be a no-op")

	_, err = radio.Dial(context.Background(), "aa:bb:cc:dd:ee:ff")
	require.NoError(t, err)
	require.NoError(t, radio.DisconnectProfiles("AA-BB-CC-DD-EE-FF"))
	assert.Equal(t, 1, client.cancels)
}

func TestLink_DiscoverServiceMissing(t *testing.T) {
	logger, _ := test.NewNullLogger()
	link := newLink("aa", newFakeClient(&ble.Profile{}), logger)

	_, err := link.DiscoverService(context.Background(), penService)

	var nf *device.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "service", nf.Resource)
}

func TestLink_DiscoverServiceHonorsContext(t *testing.T) {
	logger, _ := test.NewNullLogger()
	client := newFakeClient(penProfile(ble.CharNotify, true))
	client.discoverHold = make(chan struct{})
	defer close(client.discoverHold)
	link := newLink("aa", client, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := link.DiscoverService(ctx, penService)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCharacteristic_SubscribeChecks(t *testing.T) {
	logger, _ := test.NewNullLogger()

	tests := []struct {
		name    string
		profile *ble.Profile
		subErr  error
		check   func(t *testing.T, err error)
	}{
		{
			name:    "not notifiable",
			profile: penProfile(ble.CharRead, true),
			check:   func(t *testing.T, err error) { assert.ErrorContains(t, err, "does not support notifications") },
		},
		{
			name:    "missing descriptor",
			profile: penProfile(ble.CharNotify, false),
			check: func(t *testing.T, err error) {
				var nf *device.NotFoundError
				require.ErrorAs(t, err, &nf)
				assert.Equal(t, "descriptor", nf.Resource)
			},
		},
		{
			name:    "write failure",
			profile: penProfile(ble.CharNotify, true),
			subErr:  errors.New("device not connected"),
			check:   func(t *testing.T, err error) { assert.ErrorIs(t, err, device.ErrNotConnected) },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newFakeClient(tt.profile)
			client.subscribeErr = tt.subErr
			svc, err := newLink("aa", client, logger).DiscoverService(context.Background(), penService)
			require.NoError(t, err)
			char, err := svc.Characteristic(buttonUUID)
			require.NoError(t, err)

			tt.check(t, char.Subscribe(func([]byte) {}))
		})
	}
}

func TestService_CharacteristicMissing(t *testing.T) {
	logger, _ := test.NewNullLogger()
	svc, err := newLink("aa", newFakeClient(penProfile(ble.CharNotify, true)), logger).DiscoverService(context.Background(), penService)
	require.NoError(t, err)

	_, err = svc.Characteristic("5a87b4ef-3bfa-76a8-e642-92933c31434f")

	var nf *device.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "characteristic", nf.Resource)
}
