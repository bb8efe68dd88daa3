package operations

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"errors"
	"fmt"

	"github.com/energylab/metronom/pkg/metrolib"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/pbkdf2"
)

var errBadSignature = errors.New("wrong signature")

type asymmetricAlgorithm struct {
	family  string
	rsaBits int
	curve   elliptic.Curve
}

var asymmetricAlgorithms = map[string]asymmetricAlgorithm{
	"rsa1024":  {family: "rsa", rsaBits: 1024},
	"rsa2048":  {family: "rsa", rsaBits: 2048},
	"rsa4096":  {family: "rsa", rsaBits: 4096},
	"ecdsa224": {family: "ecdsa", curve: elliptic.P224()},
	"ecdsa256": {family: "ecdsa", curve: elliptic.P256()},
	"ecdsa384": {family: "ecdsa", curve: elliptic.P384()},
	"ecdsa521": {family: "ecdsa", curve: elliptic.P521()},
	"ed25519":  {family: "ed25519"},
}

var asymmetricNames = []string{"rsa1024", "rsa2048", "rsa4096", "ecdsa224", "ecdsa256", "ecdsa384", "ecdsa521", "ed25519"}

func (a asymmetricAlgorithm) generate() (crypto.Signer, error) {
	switch a.family {
	case "rsa":
		return rsa.GenerateKey(rand.Reader, a.rsaBits)
	case "ecdsa":
		return ecdsa.GenerateKey(a.curve, rand.Reader)
	default:
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		return priv, err
	}
}

// sign hashes content with SHA-256 except for ed25519, which signs the
// message itself.
func (a asymmetricAlgorithm) sign(key crypto.Signer, content []byte) ([]byte, error) {
	if a.family == "ed25519" {
		return key.Sign(rand.Reader, content, crypto.Hash(0))
	}
	digest := sha256.Sum256(content)
	return key.Sign(rand.Reader, digest[:], crypto.SHA256)
}

func (a asymmetricAlgorithm) verify(pub crypto.PublicKey, content, sig []byte) bool {
	switch k := pub.(type) {
	case *rsa.PublicKey:
		digest := sha256.Sum256(content)
		return rsa.VerifyPKCS1v15(k, crypto.SHA256, digest[:], sig) == nil
	case *ecdsa.PublicKey:
		digest := sha256.Sum256(content)
		return ecdsa.VerifyASN1(k, digest[:], sig)
	case ed25519.PublicKey:
		return ed25519.Verify(k, content, sig)
	}
	return false
}

// asymmetric holds the state shared by keygen, sign and verify.
type asymmetric struct {
	metrolib.BaseOperation
	name    string
	alg     asymmetricAlgorithm
	content []byte
	key     crypto.Signer
	sig     []byte
}

func newAsymmetric(args metrolib.Args) (*asymmetric, error) {
	name, err := args.Require("alg")
	if err != nil {
		return nil, err
	}
	name, err = args.Choice("alg", name, asymmetricNames...)
	if err != nil {
		return nil, err
	}
	n, err := args.Int("content_length_bytes", 1024)
	if err != nil {
		return nil, err
	}
	content := make([]byte, n)
	if _, err := rand.Read(content); err != nil {
		return nil, err
	}
	return &asymmetric{name: name, alg: asymmetricAlgorithms[name], content: content}, nil
}

func (a *asymmetric) genKey() error {
	key, err := a.alg.generate()
	if err != nil {
		return fmt.Errorf("generate %s key: %w", a.name, err)
	}
	a.key = key
	return nil
}

func (a *asymmetric) Debug() string {
	return fmt.Sprintf("alg=%s&content_length_bytes=%d", a.name, len(a.content))
}

type cryptoKeygen struct{ *asymmetric }

func newCryptoKeygen(_ string, _ metrolib.Pause, args metrolib.Args) (metrolib.Operation, error) {
	a, err := newAsymmetric(args)
	if err != nil {
		return nil, err
	}
	return cryptoKeygen{a}, nil
}

func (o cryptoKeygen) Run(context.Context) error { return o.genKey() }

type cryptoSign struct{ *asymmetric }

func newCryptoSign(_ string, _ metrolib.Pause, args metrolib.Args) (metrolib.Operation, error) {
	a, err := newAsymmetric(args)
	if err != nil {
		return nil, err
	}
	return cryptoSign{a}, nil
}

func (o cryptoSign) Before(context.Context) (bool, error) { return true, o.genKey() }

func (o cryptoSign) Run(context.Context) error {
	_, err := o.alg.sign(o.key, o.content)
	return err
}

type cryptoVerify struct{ *asymmetric }

func newCryptoVerify(_ string, _ metrolib.Pause, args metrolib.Args) (metrolib.Operation, error) {
	a, err := newAsymmetric(args)
	if err != nil {
		return nil, err
	}
	return cryptoVerify{a}, nil
}

func (o cryptoVerify) Before(context.Context) (bool, error) {
	if err := o.genKey(); err != nil {
		return false, err
	}
	sig, err := o.alg.sign(o.key, o.content)
	if err != nil {
		return false, err
	}
	o.sig = sig
	return true, nil
}

func (o cryptoVerify) Run(context.Context) error {
	if !o.alg.verify(o.key.Public(), o.content, o.sig) {
		return errBadSignature
	}
	return nil
}

const hashSecretLength = 64

type cryptoHash struct {
	metrolib.BaseOperation
	alg          string
	content      []byte
	password     []byte
	salt         []byte
	pbkdf2Iter   int
	argonThreads int
	argonTime    int
	argonMemKiB  int
	argonMode    string
}

func newCryptoHash(_ string, _ metrolib.Pause, args metrolib.Args) (metrolib.Operation, error) {
	alg, err := args.Require("alg")
	if err != nil {
		return nil, err
	}
	if alg, err = args.Choice("alg", alg, "sha256", "sha512", "pbkdf2", "argon2"); err != nil {
		return nil, err
	}
	o := &cryptoHash{alg: alg}
	n, err := args.Int("content_length_bytes", 1024)
	if err != nil {
		return nil, err
	}
	if o.pbkdf2Iter, err = args.Int("pbkdf2_iterations", 4096); err != nil {
		return nil, err
	}
	if o.argonThreads, err = args.Int("argon2_parallelism", 1); err != nil {
		return nil, err
	}
	if o.argonTime, err = args.Int("argon2_tcost", 1); err != nil {
		return nil, err
	}
	if o.argonMemKiB, err = args.Int("argon2_mcost_kib", 4096); err != nil {
		return nil, err
	}
	if o.argonMode, err = args.Choice("argon2_mode", "id", "i", "id"); err != nil {
		return nil, err
	}
	o.content = make([]byte, n)
	o.password = make([]byte, hashSecretLength)
	o.salt = make([]byte, hashSecretLength)
	for _, b := range [][]byte{o.content, o.password, o.salt} {
		if _, err := rand.Read(b); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// Before reports setup work for argon2 only, whose memory is allocated on
// first use.
func (o *cryptoHash) Before(context.Context) (bool, error) {
	return o.alg == "argon2", nil
}

func (o *cryptoHash) Run(context.Context) error {
	switch o.alg {
	case "sha256":
		sha256.Sum256(o.content)
	case "sha512":
		sha512.Sum512(o.content)
	case "pbkdf2":
		pbkdf2.Key(o.password, o.salt, o.pbkdf2Iter, hashSecretLength, sha1.New)
	case "argon2":
		t, m, p := uint32(o.argonTime), uint32(o.argonMemKiB), uint8(o.argonThreads)
		if o.argonMode == "i" {
			argon2.Key(o.password, o.salt, t, m, p, hashSecretLength)
		} else {
			argon2.IDKey(o.password, o.salt, t, m, p, hashSecretLength)
		}
	}
	return nil
}

func (o *cryptoHash) Debug() string {
	return fmt.Sprintf("alg=%s&content_length_bytes=%d&pbkdf2_iterations=%d&argon2_parallelism=%d&argon2_tcost=%d&argon2_mcost_kib=%d&argon2_mode=%s",
		o.alg, len(o.content), o.pbkdf2Iter, o.argonThreads, o.argonTime, o.argonMemKiB, o.argonMode)
}
