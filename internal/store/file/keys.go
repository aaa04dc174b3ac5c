package file

import (
	"context"

	"github.com/grantd/grantd/internal/domain"
	liberrors "github.com/grantd/grantd/internal/errors"
)

// signingKeyRepository implements store.SigningKeyRepository using
// the same JSON file layout as the other repositories.
type signingKeyRepository struct {
	store *Store
}

type keysData struct {
	Keys      []*domain.SigningKey `json:"keys"`
	ActiveKid string               `json:"active_kid"`
}

func (r *signingKeyRepository) load() (*keysData, error) {
	var data keysData
	if err := r.store.readFile("signing_keys", &data); err != nil {
		return nil, liberrors.StoreUnavailable(err)
	}
	if data.Keys == nil {
		data.Keys = []*domain.SigningKey{}
	}
	return &data, nil
}

func (r *signingKeyRepository) loadLocked() (*keysData, error) {
	var data keysData
	if err := r.store.readFileLocked("signing_keys", &data); err != nil {
		return nil, liberrors.StoreUnavailable(err)
	}
	if data.Keys == nil {
		data.Keys = []*domain.SigningKey{}
	}
	return &data, nil
}

func (r *signingKeyRepository) saveLocked(data *keysData) error {
	if err := r.store.writeFileLocked("signing_keys", data); err != nil {
		return liberrors.StoreUnavailable(err)
	}
	return nil
}

// Save updates an existing key or appends a new one.
func (r *signingKeyRepository) Save(ctx context.Context, key *domain.SigningKey) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	data, err := r.loadLocked()
	if err != nil {
		return err
	}

	found := false
	for i, k := range data.Keys {
		if k.ID == key.ID {
			data.Keys[i] = key
			found = true
			break
		}
	}
	if !found {
		data.Keys = append(data.Keys, key)
	}

	return r.saveLocked(data)
}

// GetByID returns a key by its ID (kid).
func (r *signingKeyRepository) GetByID(ctx context.Context, id string) (*domain.SigningKey, error) {
	data, err := r.load()
	if err != nil {
		return nil, err
	}

	for _, k := range data.Keys {
		if k.ID == id {
			return k, nil
		}
	}
	return nil, liberrors.NotFound("signing key", id)
}

// GetActive returns the active signing key.
func (r *signingKeyRepository) GetActive(ctx context.Context) (*domain.SigningKey, error) {
	data, err := r.load()
	if err != nil {
		return nil, err
	}

	if data.ActiveKid == "" {
		return nil, liberrors.NotFound("active signing key", "")
	}

	for _, k := range data.Keys {
		if k.ID == data.ActiveKid {
			return k, nil
		}
	}
	return nil, liberrors.NotFound("active signing key", data.ActiveKid)
}

// GetAll returns all signing keys.
func (r *signingKeyRepository) GetAll(ctx context.Context) ([]*domain.SigningKey, error) {
	data, err := r.load()
	if err != nil {
		return nil, err
	}
	return data.Keys, nil
}

// SetActive sets the active key. Exactly one key is active at a time.
func (r *signingKeyRepository) SetActive(ctx context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	data, err := r.loadLocked()
	if err != nil {
		return err
	}

	found := false
	for _, k := range data.Keys {
		if k.ID == id {
			found = true
			k.Active = true
		} else {
			k.Active = false
		}
	}
	if !found {
		return liberrors.NotFound("signing key", id)
	}

	data.ActiveKid = id
	return r.saveLocked(data)
}

// Delete removes a key.
func (r *signingKeyRepository) Delete(ctx context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	data, err := r.loadLocked()
	if err != nil {
		return err
	}

	for i, k := range data.Keys {
		if k.ID == id {
			data.Keys = append(data.Keys[:i], data.Keys[i+1:]...)
			if data.ActiveKid == id {
				data.ActiveKid = ""
			}
			return r.saveLocked(data)
		}
	}
	return liberrors.NotFound("signing key", id)
}
