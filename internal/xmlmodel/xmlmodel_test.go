package xmlmodel

import (
	"encoding/xml"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlockListMarshalRoundTrips(t *testing.T) {
	bl := NewBlockList([]string{"AAAA", "AAAB", "AAAC"})
	body, err := bl.MarshalBody()
	require.NoError(t, err)

	var back BlockList
	require.NoError(t, xml.Unmarshal(body, &back))
	assert.Equal(t, bl.Uncommitted, back.Uncommitted)
}

func TestBlockListResponseParsesCommittedAndUncommitted(t *testing.T) {
	doc := `<?xml version="1.0" encoding="utf-8"?>
<BlockList>
  <CommittedBlocks>
    <Block><Name>AAAA</Name><Size>33554432</Size></Block>
  </CommittedBlocks>
  <UncommittedBlocks>
    <Block><Name>AAAB</Name><Size>33554432</Size></Block>
  </UncommittedBlocks>
</BlockList>`

	var resp BlockListResponse
	require.NoError(t, xml.Unmarshal([]byte(doc), &resp))
	assert.Equal(t, []string{"AAAA"}, resp.CommittedNames())
	assert.Len(t, resp.UncommittedBlocks, 1)
}

func TestBlobEnumerationResultsParsesFlatListing(t *testing.T) {
	doc := `<?xml version="1.0" encoding="utf-8"?>
<EnumerationResults>
  <Prefix>foo/</Prefix>
  <Blobs>
    <Blob>
      <Name>foo/a.bin</Name>
      <Properties>
        <Content-Length>1024</Content-Length>
        <BlobType>BlockBlob</BlobType>
      </Properties>
    </Blob>
  </Blobs>
  <NextMarker></NextMarker>
</EnumerationResults>`

	var res BlobEnumerationResults
	require.NoError(t, xml.Unmarshal([]byte(doc), &res))
	require.Len(t, res.Blobs, 1)
	assert.Equal(t, "foo/a.bin", res.Blobs[0].Name)
	assert.EqualValues(t, 1024, res.Blobs[0].ContentLength)
	assert.Equal(t, "BlockBlob", res.Blobs[0].BlobType)
}
