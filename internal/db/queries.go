package db

const jobColumns = `id, job_id, filename, filepath, file_size, paper_size, color_mode, page_range, copies, printer_name, status, attempts, error_message, qr_code, uploaded_at, processed_at, completed_at`

const (
	insertJob = `
		INSERT INTO print_jobs (job_id, filename, filepath, file_size, paper_size, color_mode, page_range, copies, printer_name, status, attempts, error_message, qr_code, uploaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	getJobByJobID = `
		SELECT ` + jobColumns + `
		FROM print_jobs WHERE job_id = ?
	`

	jobIDExists = `SELECT EXISTS(SELECT 1 FROM print_jobs WHERE job_id = ?)`

	listJobsByStatus = `
		SELECT ` + jobColumns + `
		FROM print_jobs WHERE status = ? ORDER BY uploaded_at ASC
	`

	// Guarded write: the WHERE status clause makes every transition a
	// compare-and-swap, so a claim lost to a concurrent writer updates
	// zero rows instead of clobbering the newer state.
	updateJobStatus = `
		UPDATE print_jobs
		SET status = ?, attempts = ?, error_message = ?, processed_at = ?, completed_at = ?
		WHERE job_id = ? AND status = ?
	`

	updateJobError = `
		UPDATE print_jobs SET error_message = ? WHERE job_id = ?
	`

	deletePendingJob = `
		DELETE FROM print_jobs WHERE job_id = ? AND status = ?
	`
)
