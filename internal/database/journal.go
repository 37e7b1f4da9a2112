package database

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"go-media-downloader/internal/models"

	log "github.com/sirupsen/logrus"
)

const jobKeyPrefix = "job_"

func jobKey(id int) []byte {
	return []byte(jobKeyPrefix + strconv.Itoa(id))
}

// RecordJob stores the snapshot of a job under job_<id>, replacing any
// earlier record for the same id.
func (d *DB) RecordJob(snap models.JobSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshalling job %d: %w", snap.JobID, err)
	}
	if err := d.Put(jobKey(snap.JobID), data); err != nil {
		return err
	}
	log.WithFields(log.Fields{"jobId": snap.JobID, "state": snap.State}).Debug("Recorded job in journal")
	return nil
}

// GetJob returns the journalled snapshot for id, or ErrNotFound.
func (d *DB) GetJob(id int) (models.JobSnapshot, error) {
	data, err := d.Get(jobKey(id))
	if err != nil {
		return models.JobSnapshot{}, err
	}
	var snap models.JobSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return models.JobSnapshot{}, fmt.Errorf("decoding job %d: %w", id, err)
	}
	return snap, nil
}

// LoadJobs returns every journalled job ordered by id. Undecodable records
// are logged and skipped.
func (d *DB) LoadJobs() ([]models.JobSnapshot, error) {
	var jobs []models.JobSnapshot
	err := d.Fold(func(key []byte, value []byte) error {
		if !bytes.HasPrefix(key, []byte(jobKeyPrefix)) {
			return nil
		}
		var snap models.JobSnapshot
		if err := json.Unmarshal(value, &snap); err != nil {
			log.WithError(err).Warnf("Skipping unreadable journal record %s", string(key))
			return nil
		}
		jobs = append(jobs, snap)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].JobID < jobs[j].JobID })
	return jobs, nil
}

// MaxJobID returns the highest journalled job id, or 0 for an empty journal.
func (d *DB) MaxJobID() (int, error) {
	highest := 0
	for _, key := range d.Keys() {
		if !bytes.HasPrefix(key, []byte(jobKeyPrefix)) {
			continue
		}
		id, err := strconv.Atoi(string(key[len(jobKeyPrefix):]))
		if err != nil {
			continue
		}
		if id > highest {
			highest = id
		}
	}
	return highest, nil
}

// ClearJobs removes every journalled job and reports how many were removed.
func (d *DB) ClearJobs() (int, error) {
	removed := 0
	for _, key := range d.Keys() {
		if !bytes.HasPrefix(key, []byte(jobKeyPrefix)) {
			continue
		}
		if err := d.Delete(key); err != nil && !errors.Is(err, ErrNotFound) {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
