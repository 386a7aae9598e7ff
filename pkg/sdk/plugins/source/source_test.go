/*
Copyright (C) 2021 The Falco Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package source

import (
	"context"
	"encoding/binary"
	"fmt"
	"strconv"
	"testing"

	"github.com/falcosecurity/plugin-runtime-go/pkg/event"
	"github.com/falcosecurity/plugin-runtime-go/pkg/sdk"
	"github.com/falcosecurity/plugin-runtime-go/pkg/sdk/plugins"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// counterPlugin opens instances producing the numbers from 0 to the
// count passed as open params.
type counterPlugin struct {
	plugins.BasePlugin
}

var _ Plugin = &counterPlugin{}

func (m *counterPlugin) Info() *plugins.Info {
	return &plugins.Info{
		ID:          999,
		Name:        "counter",
		Description: "Source Test",
		Version:     "0.1.0",
		EventSource: "counter",
	}
}

func (m *counterPlugin) Init(in *plugins.InitInput) error {
	return nil
}

func (m *counterPlugin) Open(params string) (Instance, error) {
	count, err := strconv.ParseUint(params, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid open params: %w", err)
	}
	var next uint64
	return OpenPullInstance(func(ctx context.Context, s sdk.PluginState, evts *event.Batch) error {
		for !evts.Full() {
			if next >= count {
				return sdk.ErrEOF
			}
			if err := evts.AddPluginEvent(next, binary.LittleEndian.AppendUint64(nil, next)); err != nil {
				return err
			}
			next++
		}
		return nil
	})
}

func (m *counterPlugin) String(evt sdk.EventReader) (string, error) {
	e, err := event.Load[event.PluginEvent](evt.Raw())
	if err != nil {
		return "", err
	}
	if len(e.Params.Data) != 8 {
		return "", fmt.Errorf("invalid event data length: %d", len(e.Params.Data))
	}
	return fmt.Sprintf("n=%d", binary.LittleEndian.Uint64(e.Params.Data)), nil
}

func TestSourceBatches(t *testing.T) {
	p := &counterPlugin{}
	inst, err := p.Open("5")
	require.NoError(t, err)
	defer inst.(sdk.Closer).Close()

	batch := event.NewBatch(2, p.Info().ID)
	var res []string
	for {
		batch.Reset()
		err := inst.NextBatch(p, batch)
		for i := 0; i < batch.Len(); i++ {
			raw, lErr := event.LoadRaw(batch.Get(i))
			require.NoError(t, lErr)
			e, lErr := event.Load[event.PluginEvent](raw)
			require.NoError(t, lErr)
			require.NotNil(t, e.Params.PluginID)
			assert.Equal(t, p.Info().ID, *e.Params.PluginID)

			s, sErr := p.String(&sdk.InMemoryEventReader{ValEventNum: uint64(len(res) + 1), ValEventSource: "counter", ValRaw: raw})
			require.NoError(t, sErr)
			res = append(res, s)
		}
		if err != nil {
			assert.ErrorIs(t, err, sdk.ErrEOF)
			break
		}
		assert.True(t, batch.Full())
	}
	assert.Equal(t, []string{"n=0", "n=1", "n=2", "n=3", "n=4"}, res)
	assert.ErrorIs(t, inst.NextBatch(p, batch), sdk.ErrEOF)
}

func TestSourceOpenError(t *testing.T) {
	p := &counterPlugin{}
	_, err := p.Open("many")
	assert.Error(t, err)

	raw, err := event.LoadRaw(event.Encode(event.Metadata{}, event.PluginEvent{Data: []byte{1}}))
	require.NoError(t, err)
	_, err = p.String(&sdk.InMemoryEventReader{ValRaw: raw})
	assert.Error(t, err)
}
