package serializer

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

const storedAtHeaderName = "Shellcache-Stored-At"

// TimedResponse is a response read back from storage, together with the
// time it was written.
type TimedResponse struct {
	Response *http.Response
	StoredAt time.Time
}

// StoredResponseToBytes returns the HTTP/1.1 representation of the response
// with the given body. The response itself is not modified.
func StoredResponseToBytes(res *http.Response, body []byte, storedAt time.Time) ([]byte, error) {
	header := res.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	header.Set(storedAtHeaderName, strconv.FormatInt(storedAt.UnixNano(), 10))
	snapshot := &http.Response{
		StatusCode:    res.StatusCode,
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		ContentLength: int64(len(body)),
		Body:          io.NopCloser(bytes.NewReader(body)),
	}
	buf := &bytes.Buffer{}
	if err := snapshot.Write(buf); err != nil {
		return nil, fmt.Errorf("could not write response: %w", err)
	}
	return buf.Bytes(), nil
}

// BytesToStoredResponse parses bytes written by StoredResponseToBytes.
// The returned response is associated with req, which may be nil.
// Its body is fully buffered.
func BytesToStoredResponse(b []byte, req *http.Request) (TimedResponse, error) {
	sRes := TimedResponse{}
	res, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(b)), req)
	if err != nil {
		return sRes, fmt.Errorf("could not read response: %w", err)
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return sRes, fmt.Errorf("could not read response body: %w", err)
	}
	res.Body = io.NopCloser(bytes.NewReader(body))
	res.ContentLength = int64(len(body))

	storedAt, err := strconv.ParseInt(res.Header.Get(storedAtHeaderName), 10, 64)
	if err != nil {
		return sRes, fmt.Errorf("invalid %s header: %w", storedAtHeaderName, err)
	}
	res.Header.Del(storedAtHeaderName)

	sRes.Response = res
	sRes.StoredAt = time.Unix(0, storedAt)
	return sRes, nil
}
