package util_test

import (
	"bytes"
	"fmt"
	"sync"
	"testing"

	"github.com/downfa11-org/go-streams/util"
)

var allCompressions = []util.Compression{
	util.CompressionGzip,
	util.CompressionSnappy,
	util.CompressionLZ4,
	util.CompressionNone,
}

func TestParseCompression(t *testing.T) {
	tests := []struct {
		input   string
		want    util.Compression
		wantErr bool
	}{
		{"", util.CompressionNone, false},
		{"none", util.CompressionNone, false},
		{"GZIP", util.CompressionGzip, false},
		{" snappy ", util.CompressionSnappy, false},
		{"lz4", util.CompressionLZ4, false},
		{"zstd", util.CompressionNone, true},
	}

	for _, tt := range tests {
		got, err := util.ParseCompression(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseCompression(%q) expected error", tt.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseCompression(%q) unexpected error: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseCompression(%q) = %q; want %q", tt.input, got, tt.want)
		}
	}
}

func TestCompress_Unsupported(t *testing.T) {
	if _, err := util.Compress([]byte("x"), util.Compression("unknown")); err == nil {
		t.Fatal("expected error for unsupported compression")
	}
	if _, err := util.Decompress([]byte("x"), util.Compression("unknown")); err == nil {
		t.Fatal("expected error for unsupported decompression")
	}
}

func TestCompress_NonePassthrough(t *testing.T) {
	data := []byte(`{"id":"a"}`)
	got, err := util.Compress(data, util.CompressionNone)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("expected passthrough, got %q", got)
	}
}

func TestCompressDecompressRoundtrip(t *testing.T) {
	testCases := [][]byte{
		[]byte("Hello, World!"),
		[]byte(`{"id":"9b1d","timestamp":1700000000000,"content":"Message #1"}`),
		make([]byte, 1000),
		make([]byte, 10000),
	}

	for _, tc := range testCases {
		for _, ct := range allCompressions {
			t.Run(fmt.Sprintf("%s_%dB", ct, len(tc)), func(t *testing.T) {
				compressed, err := util.Compress(tc, ct)
				if err != nil {
					t.Fatalf("compression failed: %v", err)
				}

				decompressed, err := util.Decompress(compressed, ct)
				if err != nil {
					t.Fatalf("decompression failed: %v", err)
				}

				if !bytes.Equal(decompressed, tc) {
					t.Fatalf("roundtrip failed: original=%d decompressed=%d", len(tc), len(decompressed))
				}
			})
		}
	}
}

func TestDecompress_Corrupt(t *testing.T) {
	for _, ct := range []util.Compression{util.CompressionGzip, util.CompressionSnappy} {
		if _, err := util.Decompress([]byte("definitely not compressed"), ct); err == nil {
			t.Errorf("expected error decompressing garbage with %s", ct)
		}
	}
}

func TestConcurrentCompression(t *testing.T) {
	testData := []byte("Hello, concurrent compression")

	var wg sync.WaitGroup
	errCh := make(chan error, 100)

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()

			ct := allCompressions[id%len(allCompressions)]

			c, err := util.Compress(testData, ct)
			if err != nil {
				errCh <- fmt.Errorf("compress failed (id=%d type=%s): %v", id, ct, err)
				return
			}

			d, err := util.Decompress(c, ct)
			if err != nil {
				errCh <- fmt.Errorf("decompress failed (id=%d type=%s): %v", id, ct, err)
				return
			}

			if !bytes.Equal(d, testData) {
				errCh <- fmt.Errorf("data mismatch (id=%d type=%s)", id, ct)
			}
		}(i)
	}

	wg.Wait()
	close(errCh)

	for err := range errCh {
		t.Error(err)
	}
}
