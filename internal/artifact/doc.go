// Package artifact хранит бинарные файлы, загруженные воркерами для tasks.
//
// Байты пишутся в Blob (локальная ФС или MinIO) по ключу
// {taskId}/{artifactId}_{filename}; SHA-256 считается на лету, пока поток
// копируется в хранилище. Метаданные сохраняются в repo.
package artifact
