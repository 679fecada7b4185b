// Package strongbox provides the access-control and capability layer of a
// self-hosted object storage service.
//
// Clients create globally named buckets and upload, download, list and delete
// keyed objects inside them. Every metadata operation is scoped to the
// authenticated owner, and downloads can also be granted to an anonymous
// bearer through a time-limited capability URL signed with HMAC-SHA256.
//
// # Key Components
//
//   - Service: orchestrates uploads, downloads, deletes and reconciliation
//   - BucketRepository: global bucket namespace and bucket ownership checks
//   - ObjectRepository: object metadata scoped to its owner
//   - Signer: mints and verifies capability URLs
//   - MetaDataStore: transactional persistence (PostgreSQL, SQLite)
//   - FileStorage and PathResolver: bytes on the local filesystem
//
// # Ownership
//
// A bucket owned by someone else is reported as ErrForbidden. An object that
// is missing or owned by someone else is reported as ErrNotFound; ownership is
// part of the query, not a check after the fact.
//
// # Ordering
//
// Bytes are written and closed before their metadata row is created, and
// metadata rows are deleted before their bytes. A crash can therefore leave an
// orphan file but never a row pointing at nothing written by this process.
// Service.Reconcile finds and removes both kinds of orphan.
//
// # Example Usage
//
//	signer, err := strongbox.NewSigner(keyPair, secrets)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	service, err := strongbox.NewService(store, storage, storage, identities, signer,
//	    strongbox.ServiceConfig{PublicURL: "https://files.example.com"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	obj, err := service.PutObject(ctx, strongbox.PutObject{
//	    BucketName: "alpha", Key: "report.csv", OwnerName: "alice",
//	}, reader)
//
// See the http package for the REST API and the database package for the
// metadata backends.
package strongbox
