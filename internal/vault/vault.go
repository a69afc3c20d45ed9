// Package vault implements Blufio's at-rest credential store: a random
// master key seals every secret, and the master key itself is wrapped
// under an Argon2id passphrase-derived key, persisted as a single file
// written atomically.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/argon2"
)

const (
	saltSize   = 16
	nonceSize  = 12
	keySize    = 32
	envKeyName = "VAULT_KEY"
)

// argon2Params are the fixed KDF costs used for every key derivation. The
// salt and these params are stored alongside the ciphertext, but Load
// derives with these values rather than the stored params, so changing them
// makes existing vault files fail to open.
var argon2Params = struct {
	time    uint32
	memory  uint32
	threads uint8
}{time: 3, memory: 64 * 1024, threads: 4}

// sealedBox is one AES-256-GCM ciphertext plus the nonce it was sealed
// under. Ciphertext includes the trailing 16-byte GCM tag.
type sealedBox struct {
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// kdfParams records the Argon2id cost parameters a given vault file was
// wrapped with, so they travel with the salt. Key derivation does not read
// them back; it always uses argon2Params.
type kdfParams struct {
	Time    uint32 `json:"time"`
	Memory  uint32 `json:"memory"`
	Threads uint8  `json:"threads"`
}

// vaultFile is the on-disk JSON layout: a passphrase-wrapped master key
// plus a map of entries individually sealed under that master key.
type vaultFile struct {
	KDFSalt          []byte               `json:"kdf_salt"`
	KDFParams        kdfParams            `json:"kdf_params"`
	WrappedMasterKey sealedBox            `json:"wrapped_master_key"`
	Entries          map[string]sealedBox `json:"entries"`
}

// ErrTampered is returned when a ciphertext fails GCM authentication,
// meaning the file was modified or the passphrase is wrong.
var ErrTampered = errors.New("vault: authentication failed (tampered or wrong passphrase)")

// Entry is one named credential stored in the vault.
type Entry struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Vault is the decrypted, in-memory view of a credential store, guarded by
// a mutex because CLI commands and the running agent may touch it from
// different goroutines.
type Vault struct {
	mu        sync.Mutex
	path      string
	salt      []byte
	kdfParams kdfParams
	masterKey []byte
	entries   map[string]string    // name -> plaintext, decrypted in memory
	sealed    map[string]sealedBox // name -> last-known on-disk box, reused verbatim when unchanged
	dirty     map[string]bool
}

// Seal encrypts plaintext under a key derived from passphrase, returning a
// self-contained envelope (salt + nonce + ciphertext) serialized as JSON
// bytes. This is the wrapping primitive used to protect the vault's master
// key; it is not how individual entries are sealed (those are sealed
// directly under the master key, see sealWithKey).
func Seal(passphrase string, plaintext []byte) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}

	key := deriveKey(passphrase, salt)
	box, err := sealWithKey(key, plaintext)
	if err != nil {
		return nil, err
	}

	env := struct {
		Salt       []byte `json:"salt"`
		Nonce      []byte `json:"nonce"`
		Ciphertext []byte `json:"ciphertext"`
	}{Salt: salt, Nonce: box.Nonce, Ciphertext: box.Ciphertext}
	return json.Marshal(env)
}

// Open decrypts an envelope produced by Seal, returning ErrTampered if
// authentication fails.
func Open(passphrase string, data []byte) ([]byte, error) {
	var env struct {
		Salt       []byte `json:"salt"`
		Nonce      []byte `json:"nonce"`
		Ciphertext []byte `json:"ciphertext"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("parse vault envelope: %w", err)
	}

	key := deriveKey(passphrase, env.Salt)
	return openWithKey(key, sealedBox{Nonce: env.Nonce, Ciphertext: env.Ciphertext})
}

func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, argon2Params.time, argon2Params.memory, argon2Params.threads, keySize)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init aes cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	return gcm, nil
}

// sealWithKey seals plaintext directly under key (no KDF), sampling a fresh
// nonce from the OS CSPRNG every call. Reusing a nonce under the same key is
// forbidden; a fresh sample on every call is what makes that safe.
func sealWithKey(key, plaintext []byte) (sealedBox, error) {
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return sealedBox{}, fmt.Errorf("generate nonce: %w", err)
	}
	gcm, err := newGCM(key)
	if err != nil {
		return sealedBox{}, err
	}
	return sealedBox{Nonce: nonce, Ciphertext: gcm.Seal(nil, nonce, plaintext, nil)}, nil
}

// openWithKey decrypts a box sealed directly under key (no KDF).
func openWithKey(key []byte, box sealedBox) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, box.Nonce, box.Ciphertext, nil)
	if err != nil {
		return nil, ErrTampered
	}
	return plaintext, nil
}

// Load opens the vault file at path. If the file does not exist, an empty
// vault with a freshly sampled master key is returned so first-run
// `vault init` can create it; the master key is persisted, wrapped under
// the passphrase, on the first Save.
func Load(path, passphrase string) (*Vault, error) {
	v := &Vault{
		path:    path,
		entries: map[string]string{},
		sealed:  map[string]sealedBox{},
		dirty:   map[string]bool{},
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		masterKey := make([]byte, keySize)
		if _, err := rand.Read(masterKey); err != nil {
			return nil, fmt.Errorf("generate master key: %w", err)
		}
		v.masterKey = masterKey
		return v, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read vault file %s: %w", path, err)
	}

	var vf vaultFile
	if err := json.Unmarshal(data, &vf); err != nil {
		return nil, fmt.Errorf("parse vault file: %w", err)
	}

	wrapKey := deriveKey(passphrase, vf.KDFSalt)
	masterKey, err := openWithKey(wrapKey, vf.WrappedMasterKey)
	if err != nil {
		return nil, err
	}

	v.masterKey = masterKey
	v.salt = vf.KDFSalt
	v.kdfParams = vf.KDFParams

	for name, box := range vf.Entries {
		plaintext, err := openWithKey(masterKey, box)
		if err != nil {
			return nil, fmt.Errorf("decrypt entry %q: %w", name, err)
		}
		v.entries[name] = string(plaintext)
		v.sealed[name] = box
	}
	return v, nil
}

// Put sets a named secret value. The value is sealed under the master key
// with a fresh nonce the next time Save or Rotate is called.
func (v *Vault) Put(name, value string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.entries[name] = value
	v.dirty[name] = true
}

// Get returns a named secret and whether it was present.
func (v *Vault) Get(name string) (string, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	val, ok := v.entries[name]
	return val, ok
}

// Remove deletes a named secret.
func (v *Vault) Remove(name string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.entries, name)
	delete(v.sealed, name)
	delete(v.dirty, name)
}

// List returns every stored secret name, values omitted.
func (v *Vault) List() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	names := make([]string, 0, len(v.entries))
	for name := range v.entries {
		names = append(names, name)
	}
	return names
}

// Values returns every stored secret value, for registration with the
// redaction registry at startup.
func (v *Vault) Values() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	values := make([]string, 0, len(v.entries))
	for _, val := range v.entries {
		values = append(values, val)
	}
	return values
}

// sealedEntries returns the on-disk sealed form of every live entry,
// reusing each entry's existing box untouched unless it is new or was
// modified since the last Save/Rotate — so a passphrase rotation or an
// unrelated Put never re-seals (and never re-nonces) entries it didn't
// touch.
func (v *Vault) sealedEntries() (map[string]sealedBox, error) {
	out := make(map[string]sealedBox, len(v.entries))
	for name, value := range v.entries {
		if box, ok := v.sealed[name]; ok && !v.dirty[name] {
			out[name] = box
			continue
		}
		box, err := sealWithKey(v.masterKey, []byte(value))
		if err != nil {
			return nil, fmt.Errorf("seal entry %q: %w", name, err)
		}
		out[name] = box
	}
	return out, nil
}

// Save wraps the master key under passphrase (sampling a fresh salt on
// first save) and writes every entry, sealed under the master key, to an
// atomically-replaced file.
func (v *Vault) Save(passphrase string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.salt == nil {
		salt := make([]byte, saltSize)
		if _, err := rand.Read(salt); err != nil {
			return fmt.Errorf("generate salt: %w", err)
		}
		v.salt = salt
		v.kdfParams = kdfParams{Time: argon2Params.time, Memory: argon2Params.memory, Threads: argon2Params.threads}
	}

	wrapKey := deriveKey(passphrase, v.salt)
	wrappedMasterKey, err := sealWithKey(wrapKey, v.masterKey)
	if err != nil {
		return fmt.Errorf("wrap master key: %w", err)
	}

	entries, err := v.sealedEntries()
	if err != nil {
		return err
	}
	v.sealed = entries
	v.dirty = map[string]bool{}

	vf := vaultFile{KDFSalt: v.salt, KDFParams: v.kdfParams, WrappedMasterKey: wrappedMasterKey, Entries: entries}
	data, err := json.Marshal(vf)
	if err != nil {
		return fmt.Errorf("marshal vault file: %w", err)
	}
	return atomicWrite(v.path, data)
}

// Rotate re-derives a new wrapping key from newPassphrase over a freshly
// sampled salt and re-wraps the existing master key under it. Individual
// sealed entries are left byte-for-byte untouched: the master key itself
// never changes, only the passphrase that protects it, so there is nothing
// to re-encrypt below the wrapped-master-key layer.
func (v *Vault) Rotate(newPassphrase string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("generate salt: %w", err)
	}
	wrapKey := deriveKey(newPassphrase, salt)
	wrappedMasterKey, err := sealWithKey(wrapKey, v.masterKey)
	if err != nil {
		return fmt.Errorf("wrap master key: %w", err)
	}

	entries, err := v.sealedEntries()
	if err != nil {
		return err
	}

	v.salt = salt
	v.kdfParams = kdfParams{Time: argon2Params.time, Memory: argon2Params.memory, Threads: argon2Params.threads}
	v.sealed = entries
	v.dirty = map[string]bool{}

	vf := vaultFile{KDFSalt: salt, KDFParams: v.kdfParams, WrappedMasterKey: wrappedMasterKey, Entries: entries}
	data, err := json.Marshal(vf)
	if err != nil {
		return fmt.Errorf("marshal vault file: %w", err)
	}
	return atomicWrite(v.path, data)
}

func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create vault directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".vault-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp vault file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp vault file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("fsync temp vault file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp vault file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		return fmt.Errorf("chmod temp vault file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename vault file into place: %w", err)
	}
	return nil
}

// PassphraseFromEnv reads the vault passphrase from the VAULT_KEY
// environment variable.
func PassphraseFromEnv() (string, bool) {
	v, ok := os.LookupEnv(envKeyName)
	return v, ok
}
