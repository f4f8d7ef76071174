//go:build test

package main

import (
	"testing"

	"github.com/srg/penlink/internal/testutils"
	"github.com/stretchr/testify/suite"
)

type KeymapCommandSuite struct {
	CommandTestSuite
}

func (s *KeymapCommandSuite) TestSingleMode() {
	out, err := s.ExecuteCommand("keymap", "--mode", "media")
	s.Require().NoError(err)

	testutils.NewOutputAsserter(s.T()).Equal(out, `
2 media
  click      MEDIA_PLAY_PAUSE   164
  swipe +X   MEDIA_NEXT         163
  swipe -X   MEDIA_PREVIOUS     165
  swipe +Y   VOLUME_DOWN        114
  swipe -Y   VOLUME_UP          115
`)
}

func (s *KeymapCommandSuite) TestAllModes() {
	// GOAL: Verify every mode is listed in preference order with its full mapping
	//
	// TEST SCENARIO: keymap without --mode -> navigation, camera, media sections

	out, err := s.ExecuteCommand("keymap")
	s.Require().NoError(err)

	testutils.NewOutputAsserter(s.T()).Equal(out, `
0 navigation
  click      ENTER              28
  swipe +X   DPAD_RIGHT         106
  swipe -X   DPAD_LEFT          105
  swipe +Y   DPAD_DOWN          108
  swipe -Y   DPAD_UP            103

1 camera
  click      CAMERA_SHUTTER     212
  swipe +X   UNKNOWN            240
  swipe -X   UNKNOWN            240
  swipe +Y   UNKNOWN            240
  swipe -Y   UNKNOWN            240

2 media
  click      MEDIA_PLAY_PAUSE   164
  swipe +X   MEDIA_NEXT         163
  swipe -X   MEDIA_PREVIOUS     165
  swipe +Y   VOLUME_DOWN        114
  swipe -Y   VOLUME_UP          115
`)
}

func (s *KeymapCommandSuite) TestUnknownMode() {
	_, err := s.ExecuteCommand("keymap", "--mode", "paint")
	s.Require().Error(err)
	s.Contains(err.Error(), `unknown mode "paint"`)
}

func TestKeymapCommandSuite(t *testing.T) {
	suite.Run(t, new(KeymapCommandSuite))
}
