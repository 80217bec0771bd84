// streaming.go: Streaming encryption/decryption for large data sets.
//
// Large payloads are processed in independently authenticated chunks so
// multi-gigabyte streams never have to fit in memory. Chunks share one GCM
// engine in auto-increment mode: each chunk's tag finalization re-keys the
// engine with the big-endian-incremented nonce, so every chunk gets a
// distinct nonce under the same key without any per-chunk bookkeeping.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package kryptos

import (
	"crypto/rand"
	"encoding/binary"
	"io"

	goerrors "github.com/agilira/go-errors"
)

// StreamingEncryptor encrypts data in chunks while streaming.
//
// Example usage:
//
//	key, _ := kryptos.GenerateKey(32)
//	encryptor, _ := kryptos.NewStreamingEncryptor(outputWriter, key)
//	defer encryptor.Close()
//
//	io.Copy(encryptor, inputReader)
//
// The output begins with a header carrying the base nonce and chunk size.
type StreamingEncryptor interface {
	// Write encrypts and writes data to the underlying writer.
	Write(data []byte) (int, error)

	// Close flushes and authenticates any buffered data. Must be called
	// to complete the stream.
	Close() error
}

// StreamingDecryptor decrypts a chunked stream, verifying each chunk's
// authentication tag before releasing its plaintext.
//
// Example usage:
//
//	decryptor, _ := kryptos.NewStreamingDecryptor(inputReader, key)
//	defer decryptor.Close()
//
//	io.Copy(outputWriter, decryptor)
type StreamingDecryptor interface {
	// Read decrypts and returns data from the underlying reader.
	Read(data []byte) (int, error)

	// Close releases the decryptor.
	Close() error
}

// DefaultChunkSize is the default streaming chunk size (64KB), balancing
// memory usage against per-chunk tag overhead.
const DefaultChunkSize = 64 * 1024

// Stream format header structure:
// [4 bytes: Magic] [4 bytes: Version] [12 bytes: Base Nonce] [4 bytes: Chunk Size]
const (
	streamMagic   = "KGCM"
	streamVersion = uint32(1)
	headerSize    = 4 + 4 + StandardNonceSize + 4

	maxChunkSize = 10 * 1024 * 1024
)

type streamingEncryptor struct {
	writer    io.Writer
	engine    *GCM
	buffer    []byte
	chunkSize int
	closed    bool
}

type streamingDecryptor struct {
	reader     io.Reader
	engine     *GCM
	key        []byte
	chunkSize  int
	closed     bool
	headerRead bool
	remaining  []byte // leftover plaintext from the previous chunk
}

// NewStreamingEncryptor creates a streaming encryptor with the default
// chunk size. The key must be a legal AES key size.
func NewStreamingEncryptor(writer io.Writer, key []byte) (StreamingEncryptor, error) {
	return NewStreamingEncryptorWithChunkSize(writer, key, DefaultChunkSize)
}

// NewStreamingEncryptorWithChunkSize creates a streaming encryptor with a
// custom chunk size (1 byte to 10MB). Smaller chunks use less memory but
// pay more tag overhead.
func NewStreamingEncryptorWithChunkSize(writer io.Writer, key []byte, chunkSize int) (StreamingEncryptor, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	if chunkSize <= 0 || chunkSize > maxChunkSize {
		return nil, goerrors.New("INVALID_CHUNK_SIZE", "chunk size must be between 1 byte and 10MB")
	}

	engine, err := NewGCM(NewAESEngine())
	if err != nil {
		return nil, err
	}
	engine.SetAutoIncrement(true)

	nonce := make([]byte, StandardNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, goerrors.Wrap(err, ErrCodeNonceGen, "failed to generate stream nonce")
	}

	sk, err := NewSecretKey(key, nonce, nil)
	if err != nil {
		return nil, err
	}
	defer sk.Destroy()
	if err := engine.Initialize(true, sk); err != nil {
		return nil, err
	}

	enc := &streamingEncryptor{
		writer:    writer,
		engine:    engine,
		chunkSize: chunkSize,
		buffer:    make([]byte, 0, chunkSize),
	}

	if err := enc.writeHeader(nonce); err != nil {
		return nil, err
	}

	return enc, nil
}

// NewStreamingDecryptor creates a streaming decryptor. The header is read
// lazily on the first Read, so construction never blocks.
func NewStreamingDecryptor(reader io.Reader, key []byte) (StreamingDecryptor, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	engine, err := NewGCM(NewAESEngine())
	if err != nil {
		return nil, err
	}
	engine.SetAutoIncrement(true)

	keyCopy := make([]byte, len(key))
	copy(keyCopy, key)

	return &streamingDecryptor{
		reader:    reader,
		engine:    engine,
		key:       keyCopy,
		remaining: make([]byte, 0),
	}, nil
}

// writeHeader writes the stream format header.
func (e *streamingEncryptor) writeHeader(nonce []byte) error {
	header := make([]byte, headerSize)

	copy(header[0:4], streamMagic)
	binary.LittleEndian.PutUint32(header[4:8], streamVersion)
	copy(header[8:8+StandardNonceSize], nonce)
	binary.LittleEndian.PutUint32(header[8+StandardNonceSize:], uint32(e.chunkSize)) // #nosec G115 -- chunkSize bounded by maxChunkSize

	if _, err := e.writer.Write(header); err != nil {
		return goerrors.Wrap(err, "HEADER_WRITE_FAILED", "failed to write stream header")
	}

	return nil
}

// Write buffers data and emits a sealed chunk each time the buffer fills.
func (e *streamingEncryptor) Write(data []byte) (int, error) {
	if e.closed {
		return 0, goerrors.New("ENCRYPTOR_CLOSED", "cannot write to closed encryptor")
	}

	totalWritten := 0

	for len(data) > 0 {
		available := e.chunkSize - len(e.buffer)
		toWrite := len(data)
		if toWrite > available {
			toWrite = available
		}

		e.buffer = append(e.buffer, data[:toWrite]...)
		data = data[toWrite:]
		totalWritten += toWrite

		if len(e.buffer) == e.chunkSize {
			if err := e.flushChunk(); err != nil {
				return totalWritten, err
			}
		}
	}

	return totalWritten, nil
}

// Close flushes any remaining buffered data as a final short chunk and
// wipes the engine's key material.
func (e *streamingEncryptor) Close() error {
	if e.closed {
		return nil
	}

	if len(e.buffer) > 0 {
		if err := e.flushChunk(); err != nil {
			return err
		}
	}

	e.closed = true
	e.engine.Destroy()
	return nil
}

// flushChunk seals the current buffer as one chunk:
// [4 bytes LE: ciphertext+tag length] [ciphertext] [tag].
// Finalize re-keys the engine with the incremented nonce for the next
// chunk.
func (e *streamingEncryptor) flushChunk() error {
	if len(e.buffer) == 0 {
		return nil
	}

	sealedSize := len(e.buffer) + TagSize
	sealed := getDynamicBuffer()
	defer func() { putDynamicBuffer(sealed) }()
	if cap(sealed) < sealedSize {
		sealed = make([]byte, sealedSize)
	} else {
		sealed = sealed[:sealedSize]
	}

	if err := e.engine.Transform(e.buffer, 0, sealed, 0, len(e.buffer)); err != nil {
		return err
	}
	if err := e.engine.Finalize(sealed, len(e.buffer), TagSize); err != nil {
		return err
	}

	var chunkHeader [4]byte
	binary.LittleEndian.PutUint32(chunkHeader[:], uint32(len(sealed))) // #nosec G115 -- bounded by maxChunkSize+TagSize

	if _, err := e.writer.Write(chunkHeader[:]); err != nil {
		return goerrors.Wrap(err, "CHUNK_WRITE_FAILED", "failed to write chunk header")
	}
	if _, err := e.writer.Write(sealed); err != nil {
		return goerrors.Wrap(err, "CHUNK_WRITE_FAILED", "failed to write encrypted chunk")
	}

	Zeroize(e.buffer)
	e.buffer = e.buffer[:0]

	return nil
}

// readHeader reads and validates the stream format header, then keys the
// engine with the base nonce it carries.
func (d *streamingDecryptor) readHeader() error {
	if d.headerRead {
		return nil
	}

	header := make([]byte, headerSize)
	if _, err := io.ReadFull(d.reader, header); err != nil {
		return goerrors.Wrap(err, "HEADER_READ_FAILED", "failed to read stream header")
	}

	if string(header[0:4]) != streamMagic {
		return goerrors.New("INVALID_STREAM_FORMAT", "invalid magic bytes")
	}

	if version := binary.LittleEndian.Uint32(header[4:8]); version != streamVersion {
		return goerrors.New("UNSUPPORTED_STREAM_VERSION", "unsupported stream version")
	}

	nonce := header[8 : 8+StandardNonceSize]

	d.chunkSize = int(binary.LittleEndian.Uint32(header[8+StandardNonceSize:]))
	if d.chunkSize <= 0 || d.chunkSize > maxChunkSize {
		return goerrors.New("INVALID_CHUNK_SIZE", "invalid chunk size in header")
	}

	sk, err := NewSecretKey(d.key, nonce, nil)
	if err != nil {
		return err
	}
	defer sk.Destroy()
	if err := d.engine.Initialize(false, sk); err != nil {
		return err
	}

	Zeroize(d.key)
	d.key = nil
	d.headerRead = true

	return nil
}

// Read decrypts chunks as needed to fill data, carrying plaintext left
// over from a chunk boundary into the next call.
func (d *streamingDecryptor) Read(data []byte) (int, error) {
	if d.closed {
		return 0, goerrors.New("DECRYPTOR_CLOSED", "cannot read from closed decryptor")
	}

	if !d.headerRead {
		if err := d.readHeader(); err != nil {
			return 0, err
		}
	}

	totalRead := 0

	for len(data) > 0 {
		if len(d.remaining) > 0 {
			n := copy(data, d.remaining)
			d.remaining = d.remaining[n:]
			data = data[n:]
			totalRead += n
			continue
		}

		chunk, err := d.readNextChunk()
		if err != nil {
			if err == io.EOF && totalRead > 0 {
				return totalRead, nil
			}
			return totalRead, err
		}

		if len(chunk) == 0 {
			return totalRead, io.EOF
		}

		n := copy(data, chunk)
		if n < len(chunk) {
			d.remaining = make([]byte, len(chunk)-n)
			copy(d.remaining, chunk[n:])
		}

		data = data[n:]
		totalRead += n
	}

	return totalRead, nil
}

// Close wipes any undelivered plaintext and the engine's key material.
func (d *streamingDecryptor) Close() error {
	if d.closed {
		return nil
	}

	Zeroize(d.remaining)
	d.remaining = nil
	d.engine.Destroy()
	d.closed = true
	return nil
}

// readNextChunk reads one framed chunk, decrypts it, and verifies its tag.
// Verification re-keys the engine with the incremented nonce for the next
// chunk, mirroring the encryptor.
func (d *streamingDecryptor) readNextChunk() ([]byte, error) {
	var chunkHeader [4]byte
	if _, err := io.ReadFull(d.reader, chunkHeader[:]); err != nil {
		return nil, err // propagate EOF
	}

	sealedSize := binary.LittleEndian.Uint32(chunkHeader[:])
	if sealedSize == 0 {
		return []byte{}, nil
	}
	if int64(sealedSize) > int64(d.chunkSize+TagSize) {
		return nil, goerrors.New("INVALID_CHUNK_SIZE", "chunk size exceeds maximum")
	}
	if sealedSize < TagSize {
		return nil, goerrors.New("INVALID_CHUNK_SIZE", "chunk shorter than its tag")
	}

	sealed := make([]byte, sealedSize)
	if _, err := io.ReadFull(d.reader, sealed); err != nil {
		return nil, goerrors.Wrap(err, "CHUNK_READ_FAILED", "failed to read encrypted chunk")
	}

	bodyLen := int(sealedSize) - TagSize
	plaintext := make([]byte, bodyLen)
	if err := d.engine.Transform(sealed, 0, plaintext, 0, bodyLen); err != nil {
		return nil, err
	}

	ok, err := d.engine.Verify(sealed, bodyLen, TagSize)
	if err != nil {
		Zeroize(plaintext)
		return nil, err
	}
	if !ok {
		Zeroize(plaintext)
		return nil, goerrors.New("CHUNK_AUTH_FAILED", "chunk authentication failed")
	}

	return plaintext, nil
}
